package divide

import (
	"context"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	errors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/CherifSy/divide/query"
)

// Service implements the server side of the credential protocol: sign-up,
// login, account validation, one-time recovery, token resolution, and
// owner-scoped data mutations. Each call is stateless and independent;
// there is no transactional isolation between reading a record and
// writing it back, so concurrent requests against one account can race on
// token rotation. Callers wanting stronger isolation should add
// optimistic versioning in the store.
type Service struct {
	store  Store
	keys   *KeyManager
	tokens *TokenService
	config Config
	logger Logger
}

// ServiceOption configures a Service during construction.
type ServiceOption func(*Service)

// WithServiceLogger replaces the default stdout logger.
func WithServiceLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService wires the protocol against a store and key material. The
// token codec signs under the config's signing key when set, otherwise
// under the key manager's symmetric key.
func NewService(store Store, keys *KeyManager, config Config, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		keys:   keys,
		config: config,
		logger: defLogger{},
	}

	for _, opt := range opts {
		opt(s)
	}

	signingKey := []byte(config.GetSigningKey())
	if len(signingKey) == 0 {
		signingKey = keys.SymmetricKey()
	}
	s.tokens = NewTokenService(signingKey, s.logger)

	return s
}

// Tokens exposes the codec so the session resolver can share it.
func (s *Service) Tokens() *TokenService {
	return s.tokens
}

// PublicKey returns the key bytes served to clients for password
// transport.
func (s *Service) PublicKey() []byte {
	return s.keys.PublicKeyBytes()
}

func (s *Service) tokenTTL() time.Duration {
	return time.Duration(s.config.GetTokenTTLHours()) * time.Hour
}

func (s *Service) recoveryTTL() time.Duration {
	return time.Duration(s.config.GetRecoveryTTLHours()) * time.Hour
}

// SignUp registers a new account. The supplied password must be sealed
// against the server public key; it is decrypted, hashed, and the
// intermediate discarded before anything persists. Returns the full
// stored record; transport layers sanitize before it leaves the process.
func (s *Service) SignUp(ctx context.Context, creds *Record) (*Record, error) {
	if err := validateCredentials(creds); err != nil {
		return nil, err
	}

	existing, err := s.findOneByMeta(ctx, MetaEmail, creds.Email())
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateEmail
	}

	plaintext, err := s.keys.Decrypt(creds.Password())
	if err != nil {
		return nil, err
	}

	hash, err := HashPassword(plaintext, s.config.GetBcryptCost())
	if err != nil {
		return nil, err
	}

	count, err := s.store.Count(ctx, TypeCredentials)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "sign up: count failed").
			WithTextCode(TextCodeStorageFailure)
	}

	record := creds.Clone()
	record.OwnerID = count + 1
	record.Type = TypeCredentials
	record.SetPassword(hash)
	record.SetValidation(uuid.NewString())

	authToken, err := s.tokens.Issue(record.OwnerID, s.tokenTTL())
	if err != nil {
		return nil, err
	}
	recoveryToken, err := s.tokens.Issue(record.OwnerID, s.recoveryTTL())
	if err != nil {
		return nil, err
	}
	record.SetAuthToken(authToken)
	record.SetRecoveryToken(recoveryToken)

	if err := s.save(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info("sign up: registered owner %d", record.OwnerID)

	return record, nil
}

// Login authenticates by email and sealed password. Two mutually
// exclusive paths: when the stored validation marker is non-empty and
// matches the supplied one, the decrypted password becomes the new
// stored hash and the compare is skipped; otherwise the decrypted
// password is compared against the stored hash. An expired auth token is
// replaced and persisted before the record returns.
func (s *Service) Login(ctx context.Context, creds *Record) (*Record, error) {
	if err := validateCredentials(creds); err != nil {
		return nil, err
	}

	record, err := s.findOneByMeta(ctx, MetaEmail, creds.Email())
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrAccountNotFound
	}

	plaintext, err := s.keys.Decrypt(creds.Password())
	if err != nil {
		return nil, err
	}

	marker := record.Validation()
	if marker != "" && marker == creds.Validation() {
		hash, err := HashPassword(plaintext, s.config.GetBcryptCost())
		if err != nil {
			return nil, err
		}
		record.SetPassword(hash)
	} else if err := ComparePasswordAndHash(plaintext, record.Password()); err != nil {
		return nil, err
	}

	if s.tokens.Expired(record.AuthToken(), time.Now()) {
		refreshed, err := s.tokens.Issue(record.OwnerID, s.tokenTTL())
		if err != nil {
			return nil, err
		}
		record.SetAuthToken(refreshed)
	}

	if err := s.save(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Debug("login: owner %d authenticated", record.OwnerID)

	return record, nil
}

// ValidateAccount redeems a validation marker, flipping it to the
// validated sentinel.
func (s *Service) ValidateAccount(ctx context.Context, marker string) (*Record, error) {
	if marker == "" || marker == Validated {
		return nil, ErrMarkerNotFound
	}

	record, err := s.findOneByMeta(ctx, MetaValidation, marker)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrMarkerNotFound
	}

	record.SetValidation(Validated)

	if err := s.save(ctx, record); err != nil {
		return nil, err
	}

	return record, nil
}

// RecoverFromToken redeems a one-time recovery token. Both the auth
// token and the recovery token rotate, so the presented token never
// resolves a second time.
func (s *Service) RecoverFromToken(ctx context.Context, token string) (*Record, error) {
	record, err := s.findOneByMeta(ctx, MetaRecoveryToken, token)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrUnknownToken
	}

	authToken, err := s.tokens.Issue(record.OwnerID, s.tokenTTL())
	if err != nil {
		return nil, err
	}
	recoveryToken, err := s.tokens.Issue(record.OwnerID, s.recoveryTTL())
	if err != nil {
		return nil, err
	}
	record.SetAuthToken(authToken)
	record.SetRecoveryToken(recoveryToken)

	if err := s.save(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info("recover: rotated tokens for owner %d", record.OwnerID)

	return record, nil
}

// ResolveToken maps a bearer token back to its record. A token that
// fails to parse is treated the same as an expired one.
func (s *Service) ResolveToken(ctx context.Context, token string) (*Record, error) {
	parsed, err := s.tokens.Parse(token)
	if err != nil {
		return nil, ErrTokenExpired
	}
	if parsed.IsExpired(time.Now()) {
		return nil, ErrTokenExpired
	}

	record, err := s.findOneByMeta(ctx, MetaAuthToken, token)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrUnknownToken
	}

	return record, nil
}

// SaveUserData overwrites the owner's user data bag.
func (s *Service) SaveUserData(ctx context.Context, ownerID int64, data map[string]any) (*Record, error) {
	record, err := s.findOneByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrAccountNotFound
	}

	record.ReplaceUserData(data)

	if err := s.save(ctx, record); err != nil {
		return nil, err
	}

	return record, nil
}

// UserData fetches the owner's user data bag.
func (s *Service) UserData(ctx context.Context, ownerID int64) (map[string]any, error) {
	record, err := s.findOneByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrAccountNotFound
	}
	return record.UserData, nil
}

// RegisterPushKey attaches a push messaging key to the owner's record.
func (s *Service) RegisterPushKey(ctx context.Context, ownerID int64, key string) error {
	record, err := s.findOneByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrAccountNotFound
	}

	record.SetPushKey(key)

	return s.save(ctx, record)
}

// UnregisterPushKey clears the owner's push messaging key.
func (s *Service) UnregisterPushKey(ctx context.Context, ownerID int64) error {
	record, err := s.findOneByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrAccountNotFound
	}

	record.SetPushKey("")

	return s.save(ctx, record)
}

func (s *Service) findOneByMeta(ctx context.Context, field, value string) (*Record, error) {
	q := query.Select().
		From(TypeCredentials).
		WhereMeta(field, query.OpEq, value).
		Limit(1).
		Build()

	return s.findOne(ctx, q)
}

func (s *Service) findOneByOwner(ctx context.Context, ownerID int64) (*Record, error) {
	q := query.Select().
		From(TypeCredentials).
		Where("owner_id", query.OpEq, strconv.FormatInt(ownerID, 10)).
		Limit(1).
		Build()

	return s.findOne(ctx, q)
}

func (s *Service) findOne(ctx context.Context, q *query.Query) (*Record, error) {
	records, err := s.store.Execute(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "store lookup failed").
			WithTextCode(TextCodeStorageFailure)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func (s *Service) save(ctx context.Context, r *Record) error {
	if err := s.store.Save(ctx, r); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "store save failed").
			WithTextCode(TextCodeStorageFailure)
	}
	return nil
}

func validateCredentials(creds *Record) error {
	if creds == nil {
		return ErrMalformedPayload
	}

	err := validation.Errors{
		"email": validation.Validate(creds.Email(), validation.Required, is.Email),
		"pw":    validation.Validate(creds.Password(), validation.Required),
	}.Filter()
	if err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "malformed credential payload").
			WithTextCode(TextCodePayloadMalformed).
			WithCode(errors.CodeBadRequest)
	}

	return nil
}
