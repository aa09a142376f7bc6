package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/lifeplan-navigator/authcore"
	"github.com/lifeplan-navigator/authcore/authz"
	"github.com/lifeplan-navigator/authcore/fieldcrypt"
	"github.com/lifeplan-navigator/authcore/internal/logging"
	"github.com/lifeplan-navigator/authcore/internal/redisconn"
	"github.com/lifeplan-navigator/authcore/internal/serverconfig"
	"github.com/lifeplan-navigator/authcore/internal/storage"
	"github.com/lifeplan-navigator/authcore/session"
)

var errUsage = errors.New("missing command")

// operatorID is recorded as the actor of accounts created here.
const operatorID = "lifeplan-admin"

// Test seams for the terminal.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

func genKey(stdout io.Writer) error {
	key, err := fieldcrypt.GenerateKey()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, key)
	return err
}

// openStore reads the config and opens its database. The memory driver is
// refused since nothing would persist.
func openStore(ctx context.Context, configPath string) (serverconfig.Config, *storage.Handle, error) {
	cfg, err := serverconfig.Read(configPath)
	if err != nil {
		return cfg, nil, err
	}
	if cfg.Database.Driver == "memory" {
		return cfg, nil, errors.New("database.driver is memory; nothing to administer")
	}
	logger, err := logging.New(cfg.Log.Format, cfg.Log.Level, os.Stderr)
	if err != nil {
		return cfg, nil, err
	}
	h, err := storage.Open(ctx, cfg.Database, logger)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, h, nil
}

func migrate(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("LIFEPLAN_CONFIG"), "config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, h, err := openStore(ctx, *configPath)
	if err != nil {
		return err
	}
	defer h.Close()

	applied, err := h.Migrate(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		_, err = fmt.Fprintln(stdout, "schema is up to date")
		return err
	}
	_, err = fmt.Fprintf(stdout, "applied %d migration(s): %v\n", len(applied), applied)
	return err
}

func createUser(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("LIFEPLAN_CONFIG"), "config file")
	email := fs.String("email", "", "account email")
	name := fs.String("name", "", "display name")
	role := fs.String("role", string(authz.RoleUser), "role: user, family_member, support, admin or super_admin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *name == "" {
		return errors.New("-email and -name are required")
	}

	cfg, h, err := openStore(ctx, *configPath)
	if err != nil {
		return err
	}
	defer h.Close()

	pw, err := promptPassword(stdin, stderr)
	if err != nil {
		return err
	}

	engine, closeEngine, err := buildEngine(ctx, cfg, h, false, stderr)
	if err != nil {
		return err
	}
	defer closeEngine()

	u, err := engine.CreateUser(ctx, operatorID, authcore.RegisterRequest{
		Email:    *email,
		Password: pw,
		Name:     *name,
	}, authz.Role(*role))
	if err != nil {
		var ve *authcore.ValidationError
		if errors.As(err, &ve) {
			return fmt.Errorf("%s: %s", ve.Field, ve.Message)
		}
		return err
	}
	_, err = fmt.Fprintf(stdout, "created %s (%s) role=%s\n", u.Email, u.ID, u.Role)
	return err
}

// buildEngine wires an engine over h. With withSessions set and redis.url
// configured it talks to the server's session store so that revocations
// reach live sessions; otherwise an empty in-memory store satisfies Build.
func buildEngine(ctx context.Context, cfg serverconfig.Config, h *storage.Handle, withSessions bool, stderr io.Writer) (*authcore.Engine, func(), error) {
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, nil, err
	}

	closers := []func() error{}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	builder := authcore.New().
		WithConfig(engineCfg).
		WithUserStore(h.Users)
	if withSessions && cfg.Redis.URL != "" {
		conn, err := redisconn.New(cfg.Redis.URL, 3*time.Second)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, conn.Close)
		rdb, err := conn.Client(ctx)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		builder = builder.WithRedis(rdb)
	} else {
		if withSessions {
			fmt.Fprintln(stderr, "warning: redis.url is not set; live sessions are not revoked")
		}
		builder = builder.WithSessionStore(session.NewMemoryStore(session.Policy{
			IdleTimeout:     engineCfg.Session.IdleTimeout,
			AbsoluteTimeout: engineCfg.Session.AbsoluteTimeout,
			MaxConcurrent:   engineCfg.Session.MaxConcurrent,
		}))
	}
	if h.Audit != nil {
		builder = builder.WithAuditSink(h.Audit)
	}
	engine, err := builder.Build()
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	closers = append(closers, func() error {
		engine.Close()
		return nil
	})
	return engine, closeAll, nil
}

// setAccountStatus disables or re-enables the account with -email.
func setAccountStatus(ctx context.Context, name string, disable bool, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("LIFEPLAN_CONFIG"), "config file")
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("-email is required")
	}

	cfg, h, err := openStore(ctx, *configPath)
	if err != nil {
		return err
	}
	defer h.Close()

	rec, err := h.Users.GetByEmail(ctx, authcore.NormalizeEmail(*email))
	if err != nil {
		return err
	}

	engine, closeEngine, err := buildEngine(ctx, cfg, h, disable, stderr)
	if err != nil {
		return err
	}
	defer closeEngine()

	if !disable {
		if err := engine.EnableAccount(ctx, operatorID, rec.ID); err != nil {
			return err
		}
		_, err = fmt.Fprintf(stdout, "enabled %s (%s)\n", rec.Email, rec.ID)
		return err
	}
	n, err := engine.DisableAccount(ctx, operatorID, rec.ID)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "disabled %s (%s) sessions_revoked=%d\n", rec.Email, rec.ID, n)
	return err
}

// promptPassword reads the password without echo, twice, from a terminal,
// or a single line from a pipe.
func promptPassword(stdin io.Reader, prompt io.Writer) (string, error) {
	f, ok := stdin.(*os.File)
	if !ok || !isTerminal(int(f.Fd())) {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return "", errors.New("no password on stdin")
		}
		return line, nil
	}

	read := func(label string) (string, error) {
		fmt.Fprint(prompt, label)
		b, err := readPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		return string(b), err
	}
	first, err := read("Password: ")
	if err != nil {
		return "", err
	}
	second, err := read("Repeat password: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passwords do not match")
	}
	return first, nil
}

func recentAudit(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("LIFEPLAN_CONFIG"), "config file")
	actor := fs.String("actor", "", "only events by this user id")
	limit := fs.Int("limit", 50, "maximum events")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, h, err := openStore(ctx, *configPath)
	if err != nil {
		return err
	}
	defer h.Close()

	events, err := h.Audit.Recent(ctx, *actor, *limit)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
	return nil
}
