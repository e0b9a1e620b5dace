package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/gprojets/gprojets/auth"
	"github.com/gprojets/gprojets/config"
	"github.com/gprojets/gprojets/globals"
	"github.com/gprojets/gprojets/persistence"
	"github.com/gprojets/gprojets/scanner"
	"github.com/gprojets/gprojets/types"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// A very simple CLI tool for the administration of gprojets projects, tasks
// and access tokens.

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")

	tokenRole string
	tokenNick string
)

// printNotifier writes notifications to stdout instead of pushing them to
// connected clients, used by the dry-run scan command.
type printNotifier struct{}

func (printNotifier) Notify(group, text string) {
	fmt.Printf("[%s] %s\n", group, text)
}

func main() {
	log.SetFlags(0)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	go func() {
		<-c
		log.Fatal("interrupted!")
	}()

	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)

	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}

	globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))

	persister, err := persistence.NewPersister(globalConfig)
	if err != nil {
		panic(err)
	}
	if persister == nil {
		panic("no persistence configured")
	}
	defer persister.Close()

	var cmdShow = &cobra.Command{
		Use:   "show",
		Short: "Show messages, projects or urgent tasks",
		Long:  `show is for printing stored messages, projects or the currently urgent tasks.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	var showLimit int
	var cmdShowMessages = &cobra.Command{
		Use:   "messages",
		Short: "Show messages",
		Long:  `show messages prints the most recent chat messages, oldest first.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			messages, err := persister.MessageHistory(showLimit)
			if err != nil {
				globals.AppLogger.Error("could not get messages", "error", err)
				return
			}
			m, err := json.Marshal(messages)
			if err != nil {
				globals.AppLogger.Error("could not marshal messages", "error", err)
				return
			}
			fmt.Println(string(m))
		},
	}
	cmdShowMessages.Flags().IntVar(&showLimit, "limit", persistence.DefaultHistoryLimit, "maximum number of messages")
	var cmdShowProjects = &cobra.Command{
		Use:   "projects",
		Short: "Show projects",
		Long:  `shows a listing of all stored projects.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			projects, err := persister.Projects()
			if err != nil {
				globals.AppLogger.Error("could not get projects", "error", err)
				return
			}
			p, err := json.Marshal(projects)
			if err != nil {
				globals.AppLogger.Error("could not marshal projects", "error", err)
				return
			}
			fmt.Println(string(p))
		},
	}
	var cmdShowUrgent = &cobra.Command{
		Use:   "urgent",
		Short: "Show urgent tasks",
		Long:  `show urgent prints the tasks that are overdue or due within the configured lookahead.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			lookahead := globalConfig.ScannerConfig.Lookahead
			if lookahead <= 0 {
				lookahead = 24 * time.Hour
			}
			now := time.Now().UTC()
			tasks, err := persister.UrgentTasks(now, now.Add(lookahead))
			if err != nil {
				globals.AppLogger.Error("could not get urgent tasks", "error", err)
				return
			}
			t, err := json.Marshal(tasks)
			if err != nil {
				globals.AppLogger.Error("could not marshal tasks", "error", err)
				return
			}
			fmt.Println(string(t))
		},
	}
	var cmdSet = &cobra.Command{
		Use:   "set",
		Short: "create/update project or task",
		Long:  `set creates or updates a project or task.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	var cmdSetProject = &cobra.Command{
		Use:   "project [project definition]",
		Short: "Set project",
		Long:  `set project creates or updates a project. If the project definition is "-", the definition is read from STDIN.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var r io.Reader
			if args[0] == "-" {
				r = os.Stdin
			} else {
				r = bytes.NewReader([]byte(args[0]))
			}
			dec := json.NewDecoder(r)
			project := types.Project{}
			err := dec.Decode(&project)
			if err != nil {
				globals.AppLogger.Error("could not decode project", "error", err)
				return
			}
			globals.AppLogger.Info("got project", "project", project)
			if project.Title == "" {
				globals.AppLogger.Error("no project title")
				return
			}
			err = persister.StoreProject(&project)
			if err != nil {
				globals.AppLogger.Error("could not store project", "error", err)
				return
			}
			fmt.Printf("project %d stored\n", project.Id)
		},
	}
	var cmdSetTask = &cobra.Command{
		Use:   "task [task definition]",
		Short: "Set task",
		Long:  `set task creates or updates a task with the given definition. If the task definition is "-", it is read from STDIN.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var r io.Reader
			if args[0] == "-" {
				r = os.Stdin
			} else {
				r = bytes.NewReader([]byte(args[0]))
			}
			dec := json.NewDecoder(r)
			task := types.Task{}
			err := dec.Decode(&task)
			if err != nil {
				globals.AppLogger.Error("could not decode task", "error", err)
				return
			}
			globals.AppLogger.Info("got task", "task", task)
			if task.Title == "" {
				globals.AppLogger.Error("no task title")
				return
			}
			err = persister.StoreTask(&task)
			if err != nil {
				globals.AppLogger.Error("could not store task", "error", err)
				return
			}
			fmt.Printf("task %d stored\n", task.Id)
		},
	}
	var cmdToken = &cobra.Command{
		Use:   "token [email]",
		Short: "Mint an access token",
		Long:  `token mints a signed bearer token for the given e-mail address, using the configured signing secret.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if globalConfig.AuthConfig.JWTSecret == "" {
				globals.AppLogger.Error("no jwt_secret configured")
				return
			}
			nick := tokenNick
			if nick == "" {
				nick = args[0]
			}
			token, err := auth.NewToken([]byte(globalConfig.AuthConfig.JWTSecret), globalConfig.AuthConfig.JWTIssuer, args[0], nick, tokenRole, globalConfig.AuthConfig.TokenTTL)
			if err != nil {
				globals.AppLogger.Error("could not create token", "error", err)
				return
			}
			fmt.Println(token)
		},
	}
	cmdToken.Flags().StringVar(&tokenRole, "role", string(types.RoleMembre), "role claim to put into the token")
	cmdToken.Flags().StringVar(&tokenNick, "nick", "", "display name (defaults to the e-mail address)")
	var cmdScan = &cobra.Command{
		Use:   "scan",
		Short: "Run a single deadline scan",
		Long:  `scan runs one deadline scan cycle and prints the notifications instead of broadcasting them.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			deadlineScanner, err := scanner.New(persister, printNotifier{}, globalConfig.ScannerConfig)
			if err != nil {
				globals.AppLogger.Error("could not create scanner", "error", err)
				return
			}
			deadlineScanner.Scan(context.Background(), time.Now().UTC())
		},
	}
	var rootCmd = &cobra.Command{Use: "gprojets-admin"}
	rootCmd.AddCommand(cmdShow)
	rootCmd.AddCommand(cmdSet)
	rootCmd.AddCommand(cmdToken)
	rootCmd.AddCommand(cmdScan)
	cmdShow.AddCommand(cmdShowMessages, cmdShowProjects, cmdShowUrgent)
	cmdSet.AddCommand(cmdSetProject, cmdSetTask)
	rootCmd.Execute()
}
