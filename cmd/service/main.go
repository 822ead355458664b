package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/antonio-alexander/go-blog-pages/internal"
	"github.com/antonio-alexander/go-blog-pages/internal/cache"
	"github.com/antonio-alexander/go-blog-pages/internal/data"
	"github.com/antonio-alexander/go-blog-pages/internal/logic"
	"github.com/antonio-alexander/go-blog-pages/internal/pages"
	"github.com/antonio-alexander/go-blog-pages/internal/service"
	"github.com/antonio-alexander/go-blog-pages/internal/utilities"

	"github.com/antonio-alexander/go-stash/memory"
	"github.com/antonio-alexander/go-stash/redis"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const defaultEnvFile string = ".env"

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
	pwd, _ := os.Getwd()
	args := os.Args[1:]
	envs := internal.Envs(os.Environ())
	osSignal := make(chan os.Signal, 1)
	signal.Notify(osSignal, syscall.SIGINT, syscall.SIGTERM)
	if err := Main(pwd, args, envs, osSignal); err != nil {
		os.Stderr.WriteString(err.Error())
		os.Exit(1)
	}
}

// mergeEnvFile adds the values of a dotenv file to envs without
// overwriting anything already set; an explicit ENV_FILE must exist
// while the default .env is optional
func mergeEnvFile(pwd string, envs map[string]string) error {
	envFile, explicit := envs["ENV_FILE"]
	if !explicit || envFile == "" {
		envFile, explicit = filepath.Join(pwd, defaultEnvFile), false
	}
	fileEnvs, err := godotenv.Read(envFile)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return errors.Wrapf(err, "while reading env file %s", envFile)
	}
	for key, value := range fileEnvs {
		if _, ok := envs[key]; !ok {
			envs[key] = value
		}
	}
	return nil
}

func createCache(envs map[string]string, parameters ...any) interface {
	internal.Configurer
	internal.Opener
	internal.Clearer
	cache.Cache
} {
	switch envs["CACHE_TYPE"] {
	default:
		return nil
	case "memory":
		return cache.NewMemory(parameters...)
	case "redis":
		return cache.NewRedis(parameters...)
	case "stash-memory":
		parameters = append(parameters, memory.New())
		return cache.NewStash(parameters...)
	case "stash-redis":
		parameters = append(parameters, redis.New())
		return cache.NewStash(parameters...)
	}
}

func Main(pwd string, args []string, envs map[string]string, osSignal chan os.Signal) error {
	var wg sync.WaitGroup

	//merge env file
	if err := mergeEnvFile(pwd, envs); err != nil {
		return err
	}

	//create context
	ctx, cancel := internal.LaunchContext(&wg, osSignal)
	defer cancel()

	// create utilities
	logger := utilities.NewLogger()
	_ = logger.Configure(envs)
	timers := utilities.NewTimers()
	counter := utilities.NewCounter()
	metrics := utilities.NewMetrics()

	//print version info
	logger.Info(ctx, "server: go-blog-pages v%s (%s) built from: %s",
		Version, GitCommit, GitBranch)

	//create renderer, configure and open
	renderer := pages.NewRenderer(logger)
	if err := renderer.Configure(envs); err != nil {
		return err
	}
	if err := renderer.Open(ctx); err != nil {
		return err
	}
	defer func() {
		if err := renderer.Close(context.Background()); err != nil {
			logger.Error(context.Background(), "error while closing renderer: %s", err)
		}
	}()

	// create cache
	cache := createCache(envs, logger)
	if cache != nil {
		if err := cache.Configure(envs); err != nil {
			return err
		}
		if err := cache.Open(ctx); err != nil {
			return err
		}
		defer func() {
			if err := cache.Close(context.Background()); err != nil {
				logger.Error(context.Background(), "error while closing cache: %s", err)
			}
		}()
	}

	//create logic, configure and open
	logic := logic.NewLogic(renderer, cache, logger, counter, metrics)
	if err := logic.Configure(envs); err != nil {
		return err
	}
	if err := logic.Open(ctx); err != nil {
		return err
	}
	defer func() {
		if err := logic.Close(context.Background()); err != nil {
			logger.Error(context.Background(), "error while closing logic: %s", err)
		}
	}()

	//create service, configure and open
	service := service.NewService(logic, renderer, cache, metrics,
		counter, timers, logger)
	if err := service.Configure(envs); err != nil {
		return err
	}
	if err := service.Open(ctx); err != nil {
		return err
	}
	logger.Info(ctx, "server: listening on %s", service.Address())
	<-ctx.Done()
	wg.Wait()
	if err := service.Close(context.Background()); err != nil {
		logger.Error(context.Background(), "error while closing service: %s", err)
	}
	return nil
}
