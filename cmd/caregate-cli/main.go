package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/caregate/caregate/pkg/api"
	"github.com/caregate/caregate/pkg/audit"
	"github.com/caregate/caregate/pkg/blocklist"
	"github.com/caregate/caregate/pkg/store"
	"github.com/caregate/caregate/pkg/token"
)

const usage = `caregate-cli <command> [flags]

Commands:
  issue-token     Mint an access/refresh token pair
  verify-token    Verify a token and print its principal
  hash-password   Hash a password for the accounts file
  block-ip        Add an IP to the blocklist
  unblock-ip      Remove an IP from the blocklist
  tail-audit      Print recent audit records from a file sink
`

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "issue-token":
		err = issueToken(logger, os.Args[2:])
	case "verify-token":
		err = verifyToken(logger, os.Args[2:])
	case "hash-password":
		err = hashPassword(os.Args[2:])
	case "block-ip":
		err = blockIP(logger, os.Args[2:], true)
	case "unblock-ip":
		err = blockIP(logger, os.Args[2:], false)
	case "tail-audit":
		err = tailAudit(logger, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.WithError(err).Fatal("Command failed")
	}
}

func newCodec() (*token.Codec, error) {
	secret := os.Getenv("CAREGATE_TOKEN_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("CAREGATE_TOKEN_SECRET is not set")
	}
	issuer := os.Getenv("CAREGATE_TOKEN_ISSUER")
	if issuer == "" {
		return token.NewCodec(secret)
	}
	return token.NewCodec(secret, token.WithIssuer(issuer))
}

func issueToken(logger *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("issue-token", flag.ExitOnError)
	subject := fs.String("subject", "", "Account id to embed as the token subject")
	role := fs.String("role", "patient", "Role: patient, doctor or admin")
	verified := fs.Bool("verified", true, "Mark the account as verified")
	fs.Parse(args)

	if *subject == "" {
		return fmt.Errorf("-subject is required")
	}
	parsedRole, err := token.ParseRole(*role)
	if err != nil {
		return err
	}

	codec, err := newCodec()
	if err != nil {
		return err
	}
	pair, err := codec.Issue(*subject, parsedRole, *verified)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"subject":          *subject,
		"role":             *role,
		"accessExpiresAt":  pair.AccessExpiresAt.Format(time.RFC3339),
		"refreshExpiresAt": pair.RefreshExpiresAt.Format(time.RFC3339),
	}).Info("Token pair issued")
	fmt.Println("access: ", pair.AccessToken)
	fmt.Println("refresh:", pair.RefreshToken)
	return nil
}

func verifyToken(logger *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("verify-token", flag.ExitOnError)
	raw := fs.String("token", "", "Access token to verify")
	fs.Parse(args)

	if *raw == "" {
		return fmt.Errorf("-token is required")
	}
	codec, err := newCodec()
	if err != nil {
		return err
	}
	principal, err := codec.Verify(*raw)
	if err != nil {
		return fmt.Errorf("token rejected: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"subject":   principal.Subject,
		"role":      principal.Role,
		"verified":  principal.Verified,
		"issuedAt":  principal.IssuedAt.Format(time.RFC3339),
		"expiresAt": principal.ExpiresAt.Format(time.RFC3339),
	}).Info("Token valid")
	return nil
}

func hashPassword(args []string) error {
	fs := flag.NewFlagSet("hash-password", flag.ExitOnError)
	password := fs.String("password", "", "Plaintext password to hash")
	fs.Parse(args)

	if *password == "" {
		return fmt.Errorf("-password is required")
	}
	hash, err := api.HashPassword(*password)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

// blockIP talks straight to the shared counter store, so blocks take effect
// on every replica immediately.
func blockIP(logger *logrus.Logger, args []string, block bool) error {
	fs := flag.NewFlagSet("block-ip", flag.ExitOnError)
	ip := fs.String("ip", "", "IP address")
	duration := fs.Duration("duration", blocklist.DefaultBlockDuration, "How long to block (block-ip only)")
	redisURL := fs.String("redis-url", os.Getenv("CAREGATE_REDIS_URL"), "Redis URL of the shared counter store")
	fs.Parse(args)

	if *ip == "" {
		return fmt.Errorf("-ip is required")
	}
	if *redisURL == "" {
		return fmt.Errorf("-redis-url is required (blocks live in the shared store)")
	}

	client, err := store.NewRedisClient(*redisURL, os.Getenv("CAREGATE_REDIS_PASSWORD"), 0)
	if err != nil {
		return err
	}
	defer client.Close()
	blocks := blocklist.New(store.NewRedisStore(client, "caregate"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if block {
		if err := blocks.Block(ctx, *ip, *duration); err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{"ip": *ip, "duration": duration.String()}).Info("IP blocked")
		return nil
	}
	if err := blocks.Unblock(ctx, *ip); err != nil {
		return err
	}
	logger.WithField("ip", *ip).Info("IP unblocked")
	return nil
}

func tailAudit(logger *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("tail-audit", flag.ExitOnError)
	dir := fs.String("dir", "", "Audit log directory of a file sink")
	count := fs.Int("n", 20, "Number of recent records to print")
	fs.Parse(args)

	if *dir == "" {
		return fmt.Errorf("-dir is required")
	}

	cfg := audit.DefaultFileLoggerConfig()
	cfg.BasePath = *dir
	cfg.Rotate = false
	sink, err := audit.NewFileLogger(cfg)
	if err != nil {
		return err
	}
	defer sink.Close()

	records, err := sink.ReadRecords(*count)
	if err != nil {
		return err
	}
	for _, rec := range records {
		line, err := rec.ToJSON()
		if err != nil {
			logger.WithError(err).Warn("Skipping unreadable record")
			continue
		}
		fmt.Println(string(line))
	}
	return nil
}
