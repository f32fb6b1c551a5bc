package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/dropzone/internal/errors"
	"github.com/vango-dev/dropzone/pkg/auth"
)

func loginCmd(flags *globalFlags) *cobra.Command {
	var (
		token   string
		email   string
		expires time.Duration
		issue   bool
		secret  string
		subject string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a bearer token for uploads",
		Long: `Store a bearer token in the session file.

The token is sent as "Authorization: Bearer <token>" by 'dropzone upload'.
With --issue an HS256 token is signed locally, which 'dropzone serve'
accepts when started with the same secret.

Examples:
  dropzone login --token eyJhbGciOi...
  dropzone login --token abc --expires 12h
  dropzone login --issue --secret dev-secret --subject me@example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			if issue {
				if secret == "" {
					secret = cfg.Serve.HMACSecret
				}
				if secret == "" {
					return errors.Newf(errors.CategoryCLI, "--issue needs --secret or serve.hmacSecret")
				}
				ttl := expires
				if ttl <= 0 {
					ttl = 24 * time.Hour
				}
				token, err = auth.IssueHMAC([]byte(secret), subject, ttl)
				if err != nil {
					return errors.Newf(errors.CategoryAuth, "sign token: %v", err)
				}
				expires = ttl
			}

			token = strings.TrimSpace(token)
			if token == "" {
				return errors.New("E020").WithSuggestion("Pass --token or --issue")
			}

			s := auth.Session{Token: token, Email: email}
			if expires > 0 {
				s.ExpiresAtUnixMs = time.Now().Add(expires).UnixMilli()
			} else if exp, ok := auth.TokenExpiry(token); ok {
				s.ExpiresAtUnixMs = exp.UnixMilli()
			}

			f := sessionFile(cfg.Auth.SessionFile)
			if err := f.Save(s); err != nil {
				return errors.Newf(errors.CategoryAuth, "write session: %v", err)
			}
			success(flags.noColor, "Logged in, session stored at %s", f.Path)
			if s.ExpiresAtUnixMs > 0 {
				info("Expires %s", time.UnixMilli(s.ExpiresAtUnixMs).Format(time.RFC1123))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "Bearer token")
	cmd.Flags().StringVar(&email, "email", "", "Account shown in the session file")
	cmd.Flags().DurationVar(&expires, "expires", 0, "Expire the session after this long")
	cmd.Flags().BoolVar(&issue, "issue", false, "Sign a local HS256 token instead of passing --token")
	cmd.Flags().StringVar(&secret, "secret", "", "HMAC secret for --issue")
	cmd.Flags().StringVar(&subject, "subject", "dropzone", "Token subject for --issue")

	return cmd
}

func logoutCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			f := sessionFile(cfg.Auth.SessionFile)
			if err := f.Delete(); err != nil {
				return errors.Newf(errors.CategoryAuth, "remove session: %v", err)
			}
			success(flags.noColor, "Logged out")
			return nil
		},
	}
}

func sessionFile(path string) auth.SessionFile {
	if path == "" {
		path = auth.DefaultSessionPath()
	}
	return auth.SessionFile{Path: path}
}
