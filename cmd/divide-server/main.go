package main

import (
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"

	"github.com/CherifSy/divide"
	"github.com/CherifSy/divide/storage/bunstore"
)

type appConfig struct {
	Addr             string `env:"DIVIDE_ADDR" envDefault:":8572"`
	DSN              string `env:"DIVIDE_DSN" envDefault:"file:divide.db"`
	SigningKey       string `env:"DIVIDE_SIGNING_KEY"`
	PrivateKeyPath   string `env:"DIVIDE_PRIVATE_KEY"`
	RSABits          int    `env:"DIVIDE_RSA_BITS" envDefault:"2048"`
	TokenTTLHours    int    `env:"DIVIDE_TOKEN_TTL_HOURS" envDefault:"24"`
	RecoveryTTLHours int    `env:"DIVIDE_RECOVERY_TTL_HOURS" envDefault:"720"`
	BcryptCost       int    `env:"DIVIDE_BCRYPT_COST" envDefault:"10"`
	Debug            bool   `env:"DIVIDE_DEBUG"`
}

func main() {
	cfg := appConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatal(err)
	}

	if cfg.Debug {
		fmt.Println("============")
		fmt.Println(print.MaybePrettyJSON(cfg))
		fmt.Println("============")
	}

	keys, err := loadKeys(cfg)
	if err != nil {
		log.Fatal(err)
	}

	store, err := bunstore.Open(cfg.DSN)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	service := divide.NewService(store, keys, divide.ConfigObject{
		SigningKey:       cfg.SigningKey,
		TokenTTLHours:    cfg.TokenTTLHours,
		RecoveryTTLHours: cfg.RecoveryTTLHours,
		BcryptCost:       cfg.BcryptCost,
	})

	app := fiber.New()
	divide.RegisterAuthRoutes(app,
		divide.WithControllerService(service),
		divide.WithControllerDebug(cfg.Debug),
	)

	go func() {
		if err := app.Listen(cfg.Addr); err != nil {
			log.Fatal(err)
		}
	}()

	WaitExitSignal()

	if err := app.Shutdown(); err != nil {
		log.Println("shutdown:", err)
	}
}

// loadKeys reads a PEM private key when configured, otherwise generates
// a fresh pair. Generated keys do not survive a restart; set
// DIVIDE_PRIVATE_KEY in any deployment where clients cache the public
// key.
func loadKeys(cfg appConfig) (*divide.KeyManager, error) {
	if cfg.PrivateKeyPath == "" {
		return divide.GenerateKeyManager(cfg.RSABits)
	}

	raw, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", cfg.PrivateKeyPath)
	}

	private, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}

	symmetric := []byte(cfg.SigningKey)
	if len(symmetric) == 0 {
		// Random per-process key; issued tokens die with the process.
		symmetric = make([]byte, 32)
		if _, err := rand.Read(symmetric); err != nil {
			return nil, err
		}
	}

	return divide.NewKeyManager(private, symmetric)
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
