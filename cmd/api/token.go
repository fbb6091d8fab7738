package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/georgemunganga/warehouse-backend/internal/modules/auth"
)

type tokenConfig struct {
	Subject string
	Name    string
	TTL     time.Duration
}

func newTokenConfig(cmd *kingpin.CmdClause) *tokenConfig {
	c := &tokenConfig{}
	cmd.Flag("subject", "Caller id recorded as actor and task creator.").Required().StringVar(&c.Subject)
	cmd.Flag("name", "Caller display name.").StringVar(&c.Name)
	cmd.Flag("ttl", "Token lifetime.").Default("24h").DurationVar(&c.TTL)
	return c
}

func issueToken(ctx context.Context, cfg Config, tc tokenConfig, out io.Writer) error {
	svc, err := auth.NewService(cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("could not create auth service: %w", err)
	}
	token, err := svc.IssueToken(ctx, auth.Caller{ID: tc.Subject, Name: tc.Name}, tc.TTL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
