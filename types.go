package divide

import (
	"context"
	"fmt"

	"github.com/CherifSy/divide/query"
)

// Logger is the minimal logging surface the package consumes. Inject your
// own; defLogger prints to stdout.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Store is the persistence collaborator the protocol compiles queries
// against. Implementations live in storage/.
type Store interface {
	// Execute runs a compiled query and returns matching records.
	Execute(ctx context.Context, q *query.Query) ([]*Record, error)
	// Save persists the record, inserting or replacing by owner id.
	Save(ctx context.Context, r *Record) error
	// Count returns the number of records of the given type.
	Count(ctx context.Context, typeName string) (int64, error)
}

// Config holds auth options.
type Config interface {
	GetSigningKey() string
	GetTokenTTLHours() int
	GetRecoveryTTLHours() int
	GetBcryptCost() int
	GetAuthScheme() string
}

// ConfigObject is a plain-struct Config.
type ConfigObject struct {
	SigningKey       string
	TokenTTLHours    int
	RecoveryTTLHours int
	BcryptCost       int
	AuthScheme       string
}

func (c ConfigObject) GetSigningKey() string    { return c.SigningKey }
func (c ConfigObject) GetTokenTTLHours() int    { return c.TokenTTLHours }
func (c ConfigObject) GetRecoveryTTLHours() int { return c.RecoveryTTLHours }
func (c ConfigObject) GetBcryptCost() int       { return c.BcryptCost }
func (c ConfigObject) GetAuthScheme() string {
	if c.AuthScheme == "" {
		return AuthScheme
	}
	return c.AuthScheme
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
