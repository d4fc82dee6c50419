// cmd/server/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"rickybot/internal/app"
	"rickybot/internal/jobs"
)

func main() {
	cliApp := cli.App{
		Name:  "rickybot",
		Usage: "Bluesky cat bot: follow, aggregate, prune and status jobs",
	}
	cliApp.Commands = []*cli.Command{
		{
			Name:   "serve",
			Usage:  "run the scheduler and BlueBerry dashboard",
			Action: runServe,
		},
		{
			Name:      "run",
			Usage:     "run a single job and print its result",
			ArgsUsage: fmt.Sprintf("<job> (one of %v)", jobs.Names),
			Action:    runJob,
		},
	}
	cliApp.DefaultCommand = "serve"
	cliApp.RunAndExitOnError()
}

func runServe(cctx *cli.Context) error {
	application, err := app.Initialize()
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v. Shutting down...", sig)
		application.Shutdown()
		os.Exit(0)
	}()

	log.Println("Starting rickybot...")
	log.Printf("BlueBerry dashboard available at http://localhost:%s", application.Config.ServerPort)
	log.Println("Login with configured username/password")

	return application.Start()
}

func runJob(cctx *cli.Context) error {
	job := cctx.Args().First()
	if job == "" {
		return cli.Exit(fmt.Sprintf("need to provide a job name, one of %v", jobs.Names), 2)
	}

	application, err := app.InitializeRunner()
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := application.RunOnce(ctx, job)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	out, err := json.Marshal(res)
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if res.Failed() {
		return cli.Exit("", 1)
	}
	return nil
}
