package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/antonio-alexander/go-blog-pages/internal"
	"github.com/antonio-alexander/go-blog-pages/internal/client"
	"github.com/antonio-alexander/go-blog-pages/internal/data"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

var (
	Version   string
	GitCommit string
	GitBranch string
)

func init() {
	if Version = data.Version; Version == "" {
		Version = "<no_version_provided>"
	}
	if GitCommit = data.GitCommit; GitCommit == "" {
		GitCommit = "<no_git_commit>"
	}
	if GitBranch = data.GitBranch; GitBranch == "" {
		GitBranch = "<no_git_branch>"
	}
}

func main() {
	args := os.Args[1:]
	envs := internal.Envs(os.Environ())
	osSignal := make(chan os.Signal, 1)
	signal.Notify(osSignal, syscall.SIGINT, syscall.SIGTERM)
	if err := Main(args, envs, osSignal); err != nil {
		os.Stderr.WriteString(err.Error())
		os.Exit(1)
	}
}

// formValues converts key=value arguments into form values, a key
// may be repeated
func formValues(args []string) (url.Values, error) {
	values := url.Values{}
	for _, arg := range args {
		key, value, found := strings.Cut(arg, "=")
		if !found || key == "" {
			return nil, errors.Errorf("invalid field %q, expected key=value", arg)
		}
		values.Add(key, value)
	}
	return values, nil
}

func printJson(writer io.Writer, item any) error {
	bytes, err := json.MarshalIndent(item, "", " ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(writer, string(bytes))
	return err
}

func printPage(writer io.Writer, page *data.Page) error {
	_, err := writer.Write(page.Html)
	return err
}

func newApp(c client.Client, writer io.Writer) *cli.App {
	return &cli.App{
		Name:      "go-blog-pages",
		Usage:     "read pages and submit forms to a go-blog-pages server",
		Version:   fmt.Sprintf("v%s (%s) built from: %s", Version, GitCommit, GitBranch),
		Writer:    writer,
		ErrWriter: writer,
		Commands: []*cli.Command{
			{
				Name:  "index",
				Usage: "Print the rendered index page",
				Action: func(ctx *cli.Context) error {
					page, err := c.Index(ctx.Context)
					if err != nil {
						return err
					}
					return printPage(writer, page)
				},
			},
			{
				Name:      "employee",
				Usage:     "Print the rendered employee page",
				ArgsUsage: "[id]",
				Action: func(ctx *cli.Context) error {
					page, err := c.Employee(ctx.Context, ctx.Args().First())
					if err != nil {
						return err
					}
					return printPage(writer, page)
				},
			},
			{
				Name:  "contact",
				Usage: "Print the rendered contact page",
				Action: func(ctx *cli.Context) error {
					page, err := c.Contact(ctx.Context)
					if err != nil {
						return err
					}
					return printPage(writer, page)
				},
			},
			{
				Name:      "submit",
				Usage:     "Submit a form and print the echoed fields",
				ArgsUsage: "[key=value...]",
				Action: func(ctx *cli.Context) error {
					values, err := formValues(ctx.Args().Slice())
					if err != nil {
						return err
					}
					form, err := c.FormSubmit(ctx.Context, values)
					if err != nil {
						return err
					}
					return printJson(writer, form)
				},
			},
			{
				Name:  "cache-clear",
				Usage: "Clear the server's page cache",
				Action: func(ctx *cli.Context) error {
					return c.CacheClear(ctx.Context)
				},
			},
			{
				Name:  "counters",
				Usage: "Print (or reset) the server's page cache counters",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "reset", Usage: "reset the counters"},
				},
				Action: func(ctx *cli.Context) error {
					if ctx.Bool("reset") {
						return c.CacheCountersClear(ctx.Context)
					}
					cacheCounters, err := c.CacheCountersRead(ctx.Context)
					if err != nil {
						return err
					}
					return printJson(writer, cacheCounters)
				},
			},
			{
				Name:  "timers",
				Usage: "Print (or reset) the server's endpoint timers",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "reset", Usage: "reset the timers"},
				},
				Action: func(ctx *cli.Context) error {
					if ctx.Bool("reset") {
						return c.TimersClear(ctx.Context)
					}
					timers, err := c.TimersRead(ctx.Context)
					if err != nil {
						return err
					}
					return printJson(writer, timers)
				},
			},
			{
				Name:  "server-version",
				Usage: "Print the server's version",
				Action: func(ctx *cli.Context) error {
					version, err := c.Version(ctx.Context)
					if err != nil {
						return err
					}
					_, err = fmt.Fprint(writer, version)
					return err
				},
			},
		},
	}
}

func Main(args []string, envs map[string]string, osSignal chan os.Signal) error {
	var wg sync.WaitGroup

	//create context
	ctx, cancel := internal.LaunchContext(&wg, osSignal)
	defer func() {
		cancel()
		wg.Wait()
	}()
	ctx = internal.CtxWithCorrelationId(ctx, internal.GenerateId())

	//create client
	client := client.NewClient()
	if err := client.Configure(envs); err != nil {
		return err
	}
	if err := client.Open(ctx); err != nil {
		return err
	}
	defer func() {
		if err := client.Close(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "error while closing client: %s\n", err)
		}
	}()

	// execute command
	return newApp(client, os.Stdout).RunContext(ctx,
		append([]string{"go-blog-pages"}, args...))
}
