package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/antonio-alexander/go-blog-pages/internal"
	"github.com/antonio-alexander/go-blog-pages/internal/client"
	"github.com/antonio-alexander/go-blog-pages/internal/data"
	"github.com/antonio-alexander/go-blog-pages/internal/utilities"

	"github.com/pkg/errors"
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

func durationFromEnvs(envs map[string]string, key string, defaultDuration time.Duration) time.Duration {
	if s := envs[key]; s != "" {
		if i, err := strconv.Atoi(s); err == nil && i > 0 {
			return time.Duration(i) * time.Second
		}
	}
	return defaultDuration
}

// readPagesFx reads every page once, the employee page is read using
// the client number so each client has its own employee key alongside
// the shared ones
func readPagesFx(ctx context.Context, client client.Client, clientNumber int) error {
	if _, err := client.Index(ctx); err != nil {
		return err
	}
	if _, err := client.Contact(ctx); err != nil {
		return err
	}
	if _, err := client.Employee(ctx, strconv.Itoa(clientNumber)); err != nil {
		return err
	}
	return nil
}

// determine hit/miss ratio with concurrent page reads while the
// page cache is periodically invalidated
func scenarioPageHerd(ctx context.Context, envs map[string]string, logger utilities.Logger,
	clients ...client.Client) error {
	const correlationId string = "scenario_page_herd"
	const minClients int = 2

	var wg sync.WaitGroup

	readInterval := durationFromEnvs(envs, "SCENARIO_READ_INTERVAL", time.Second)
	clearInterval := durationFromEnvs(envs, "SCENARIO_CLEAR_INTERVAL", 2*time.Second)
	scenarioDuration := durationFromEnvs(envs, "SCENARIO_DURATION", 10*time.Second)
	if len(clients) < minClients {
		return errors.New("not enough clients provided")
	}

	//generate context
	ctx = internal.CtxWithCorrelationId(ctx, correlationId)

	//generate start/stop channels
	start, stop := make(chan struct{}), make(chan struct{})

	//create invalidating go routine, it also submits a form so the
	// form handler shows up in the timers
	wg.Add(1)
	go func(ctx context.Context, client client.Client) {
		defer wg.Done()

		clearFx := func(ctx context.Context) error {
			if err := client.CacheClear(ctx); err != nil {
				return err
			}
			if _, err := client.FormSubmit(ctx, data.Form{
				"scenario": correlationId,
				"id":       internal.GenerateId(),
			}.ToValues()); err != nil {
				return err
			}
			return nil
		}
		tClear := time.NewTicker(clearInterval)
		defer tClear.Stop()
		<-start
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-tClear.C:
				if err := clearFx(ctx); err != nil {
					logger.Error(ctx, "error while clearing cache: %s", err)
				}
			}
		}
	}(ctx, clients[0])

	//create reader go routines
	for i := 1; i < len(clients); i++ {
		wg.Add(1)
		go func(ctx context.Context, clientNumber int, client client.Client) {
			defer wg.Done()

			correlationId := fmt.Sprintf("%s_%d", correlationId, clientNumber)
			ctx = internal.CtxWithCorrelationId(ctx, correlationId)
			tRead := time.NewTicker(readInterval)
			defer tRead.Stop()
			<-start
			for {
				select {
				case <-stop:
					return
				case <-ctx.Done():
					return
				case <-tRead.C:
					if err := readPagesFx(ctx, client, clientNumber); err != nil {
						logger.Error(ctx, "error while reading pages: %s", err)
					}
				}
			}
		}(ctx, i, clients[i])
	}

	//clear cache, counters and timers then start the go routines
	if err := clients[0].CacheClear(ctx); err != nil {
		return err
	}
	if err := clients[0].CacheCountersClear(ctx); err != nil {
		return err
	}
	if err := clients[0].TimersClear(ctx); err != nil {
		return err
	}
	close(start)

	//allow go routines to run
	select {
	case <-time.After(scenarioDuration):
	case <-ctx.Done():
	}

	//stop go routines
	close(stop)
	wg.Wait()

	//use initial client to get hit/miss ratios from server
	cacheCounters, err := clients[0].CacheCountersRead(ctx)
	if err != nil {
		return err
	}
	var hits, misses int
	for key, hit := range cacheCounters.CounterHits {
		miss := cacheCounters.CounterMisses[key]
		logger.Info(ctx, "cache hit miss ratio for %s (%d/%d): %0.2f%%",
			key, hit, hit+miss, float64(hit)/float64(hit+miss)*100)
		hits += hit
	}
	for _, miss := range cacheCounters.CounterMisses {
		misses += miss
	}
	if total := hits + misses; total > 0 {
		logger.Info(ctx, "overall cache hit miss ratio (%d/%d): %0.2f%%",
			hits, total, float64(hits)/float64(total)*100)
	} else {
		logger.Info(ctx, "no cache hits or misses recorded, is LOGIC_CACHE_ENABLED set?")
	}
	timers, err := clients[0].TimersRead(ctx)
	if err != nil {
		return err
	}
	for group, average := range timers.Averages {
		logger.Info(ctx, "average time for %s: %v", group, time.Duration(average))
	}
	return nil
}

func Main(args []string, envs map[string]string, osSignal chan os.Signal) error {
	var clients []client.Client
	var wg sync.WaitGroup

	//create context
	ctx, cancel := internal.LaunchContext(&wg, osSignal)
	defer cancel()

	// create logger
	logger := utilities.NewLogger()
	_ = logger.Configure(envs)

	//print version info
	logger.Info(ctx, "scenarios: go-blog-pages v%s (%s) built from: %s",
		Version, GitCommit, GitBranch)

	nClients, _ := strconv.Atoi(envs["N_CLIENTS"])
	for range nClients {
		//KIM: no client side cache, every read should reach the
		// server's page cache
		client := client.NewClient(logger)
		if err := client.Configure(envs); err != nil {
			return err
		}
		if err := client.Open(ctx); err != nil {
			return err
		}
		defer func() {
			if err := client.Close(context.Background()); err != nil {
				logger.Error(ctx, "error while closing client: %s", err)
			}
		}()
		clients = append(clients, client)
	}

	// execute scenario
	switch scenario := envs["SCENARIO"]; scenario {
	default:
		return errors.Errorf("unsupported scenario: %s", scenario)
	case "page_herd":
		logger.Info(ctx, "executing %s scenario", scenario)
		if err := scenarioPageHerd(ctx, envs, logger, clients...); err != nil {
			logger.Error(ctx, "error while executing %s scenario: %s", scenario, err)
		}
	}
	cancel()
	wg.Wait()
	return nil
}
