package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/noah-isme/preenroll-api/internal/enrollment"
	"github.com/noah-isme/preenroll-api/pkg/client"
	"github.com/noah-isme/preenroll-api/pkg/config"
	"github.com/noah-isme/preenroll-api/pkg/logger"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	isTerminalFunc   = term.IsTerminal   // mockable
)

const passwordEnv = "PREENROLL_PASSWORD"

// app holds what every subcommand shares: configuration, the API client and the
// signed in session.
type app struct {
	in     *bufio.Reader
	stdin  io.Reader
	out    io.Writer
	errOut io.Writer

	studentID int
	apiURL    string
	verbose   bool

	cfg     *config.ClientConfig
	logger  *zap.Logger
	client  *client.Client
	session *enrollment.Session
}

// run executes the command line and always closes the API session, including
// when the subcommand fails.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	root, a := newRootCommand(stdin, stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	a.teardown(context.WithoutCancel(ctx))
	return err
}

func newRootCommand(stdin io.Reader, stdout, stderr io.Writer) (*cobra.Command, *app) {
	a := &app{in: bufio.NewReader(stdin), stdin: stdin, out: stdout, errOut: stderr}

	root := &cobra.Command{
		Use:           "preenroll",
		Short:         "Course pre-enrollment for students",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.setup()
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.IntVarP(&a.studentID, "student-id", "s", 0, "student id (matrícula)")
	flags.StringVar(&a.apiURL, "api", "", "API base URL, overrides PREENROLL_API_URL")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log API traffic")

	root.AddCommand(
		newStatusCommand(a),
		newPeriodsCommand(a),
		newOfferingsCommand(a),
		newEnrollCommand(a),
	)
	return root, a
}

func (a *app) setup() error {
	cfg, err := config.LoadClient()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.apiURL != "" {
		cfg.APIURL = strings.TrimRight(a.apiURL, "/")
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	a.cfg = cfg

	a.logger, err = logger.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.client = client.NewFromConfig(cfg, a.logger)
	return nil
}

func (a *app) teardown(ctx context.Context) {
	if a.client != nil && a.client.Token() != "" {
		if err := a.client.Logout(ctx); err != nil {
			a.logger.Debug("logout failed", zap.Error(err))
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// signIn authenticates and loads the session. The password comes from
// PREENROLL_PASSWORD or is prompted without echo.
func (a *app) signIn(ctx context.Context) (*enrollment.Session, error) {
	if a.studentID <= 0 {
		id, err := a.prompt("Student id: ")
		if err != nil {
			return nil, err
		}
		if a.studentID, err = strconv.Atoi(id); err != nil || a.studentID <= 0 {
			return nil, errors.New("student id must be a positive number")
		}
	}
	password, err := a.password()
	if err != nil {
		return nil, err
	}
	if _, err := a.client.LoginStudent(ctx, a.studentID, password); err != nil {
		return nil, describe(err)
	}

	loc, err := enrollment.LoadLocation(a.cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	a.session = enrollment.NewSession(enrollment.SessionConfig{
		Backend:     a.client,
		Invalidator: a.client,
		Notifier:    enrollment.NotifierFunc(a.notify),
		Location:    loc,
		MaxSubjects: enrollment.MaxSubjects,
		Logger:      a.logger,
	})
	if err := a.session.Load(ctx); err != nil {
		return nil, describe(err)
	}
	return a.session, nil
}

func (a *app) password() (string, error) {
	if pwd := os.Getenv(passwordEnv); pwd != "" {
		return pwd, nil
	}
	if f, ok := a.stdin.(*os.File); ok && isTerminalFunc(int(f.Fd())) {
		fmt.Fprint(a.errOut, "Password: ")
		pwd, err := readPasswordFunc(int(f.Fd()))
		fmt.Fprintln(a.errOut)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		if len(pwd) == 0 {
			return "", errors.New("password is required")
		}
		return string(pwd), nil
	}
	pwd, err := a.prompt("Password: ")
	if err != nil {
		return "", err
	}
	if pwd == "" {
		return "", errors.New("password is required")
	}
	return pwd, nil
}

func (a *app) prompt(label string) (string, error) {
	fmt.Fprint(a.errOut, label)
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (a *app) confirm(question string) (bool, error) {
	answer, err := a.prompt(question + " [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes", "s", "si", "sí":
		return true, nil
	default:
		return false, nil
	}
}

func (a *app) notify(n enrollment.Notice) {
	fmt.Fprintf(a.errOut, "[%s] %s\n", n.Level, n.Message)
}

// describe turns API rejections into readable errors.
func describe(err error) error {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	msg := apiErr.ServerMessage()
	if items := apiErr.ItemMessages(); len(items) > 0 {
		msg += ":\n  - " + strings.Join(items, "\n  - ")
	}
	return errors.New(msg)
}
