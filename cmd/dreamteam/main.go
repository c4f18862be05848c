// =============================================================================
// DreamTeam 主入口
// =============================================================================
// 按工作流定义驱动多个 Agent 产出项目文档，遇到追问时暂停等待回答
//
// 使用方法:
//
//	dreamteam run --workflow greenfield.yaml --user u1 --prompt "..."
//	dreamteam resume --workflow-id <id> --answer "..."
//	dreamteam status --workflow-id <id>
//	dreamteam list --user u1
//	dreamteam usage --user u1
//	dreamteam version
// =============================================================================

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/EreZAzariyA/dream-team-builder-sub007/config"
	"github.com/EreZAzariyA/dream-team-builder-sub007/types"
	"github.com/EreZAzariyA/dream-team-builder-sub007/workflow"
	"github.com/EreZAzariyA/dream-team-builder-sub007/workflow/persistence"
	"github.com/EreZAzariyA/dream-team-builder-sub007/workflow/template"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "run":
		err = runWorkflow(ctx, os.Args[2:], os.Stdout)
	case "resume":
		err = runResume(ctx, os.Args[2:], os.Stdout)
	case "status":
		err = runStatus(ctx, os.Args[2:], os.Stdout)
	case "list":
		err = runList(ctx, os.Args[2:], os.Stdout)
	case "usage":
		err = runUsage(ctx, os.Args[2:], os.Stdout)
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// ▶️ run / resume
// =============================================================================

func runWorkflow(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	workflowFile := fs.String("workflow", "", "Path to workflow definition (YAML)")
	userID := fs.String("user", "", "User ID for usage accounting")
	userPrompt := fs.String("prompt", "", "What to build")
	projectName := fs.String("project", "", "Project name")
	repo := fs.String("repo", "", "Repository as owner/name")
	repoBranch := fs.String("branch", "", "Repository branch")
	_ = fs.Parse(args)

	if *workflowFile == "" {
		return fmt.Errorf("--workflow is required")
	}
	def, err := template.LoadWorkflowFile(*workflowFile)
	if err != nil {
		return err
	}

	in := workflow.StartInput{
		UserID:     *userID,
		UserPrompt: *userPrompt,
		Project:    types.ProjectInfo{Name: *projectName},
	}
	if *repo != "" {
		owner, name, ok := strings.Cut(*repo, "/")
		if !ok || owner == "" || name == "" {
			return fmt.Errorf("--repo must be owner/name")
		}
		in.Repository = &types.RepositoryInfo{Owner: owner, Name: name, Branch: *repoBranch}
	}

	return withApp(ctx, *configPath, func(a *app) error {
		if err := a.startStatusServer(); err != nil {
			a.logger.Warn("status server not started", zap.Error(err))
		}
		rr, err := a.engine.Start(ctx, def, in)
		if err != nil {
			return err
		}
		return printResult(out, rr)
	})
}

func runResume(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	workflowID := fs.String("workflow-id", "", "Paused workflow ID")
	answer := fs.String("answer", "", "Answer to the pending question")
	agentID := fs.String("agent", "", "Agent that continues the step (defaults to the asking agent)")
	_ = fs.Parse(args)

	if *workflowID == "" || *answer == "" {
		return fmt.Errorf("--workflow-id and --answer are required")
	}

	return withApp(ctx, *configPath, func(a *app) error {
		if err := a.startStatusServer(); err != nil {
			a.logger.Warn("status server not started", zap.Error(err))
		}
		rr, err := a.engine.Resume(ctx, *workflowID, *answer, *agentID)
		if err != nil {
			return err
		}
		return printResult(out, rr)
	})
}

// =============================================================================
// 🔍 status / list / usage
// =============================================================================

func runStatus(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	workflowID := fs.String("workflow-id", "", "Workflow ID")
	_ = fs.Parse(args)

	if *workflowID == "" {
		return fmt.Errorf("--workflow-id is required")
	}
	return withApp(ctx, *configPath, func(a *app) error {
		st, err := a.store.Load(ctx, *workflowID)
		if err != nil {
			return err
		}
		return writeJSON(out, st)
	})
}

func runList(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	userID := fs.String("user", "", "Only workflows of this user")
	status := fs.String("status", "", "Only workflows in this status (running, paused, completed, failed)")
	_ = fs.Parse(args)

	return withApp(ctx, *configPath, func(a *app) error {
		states, err := a.store.List(ctx, persistence.ListFilter{
			UserID: *userID,
			Status: types.WorkflowStatus(*status),
		})
		if err != nil {
			return err
		}
		for _, st := range states {
			fmt.Fprintf(out, "%s\t%s\t%s\tstep %d\t%s\n",
				st.ID, st.Status, st.UserID, st.CurrentStep, st.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	})
}

func runUsage(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("usage", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	userID := fs.String("user", "", "User ID (empty for the global counters)")
	_ = fs.Parse(args)

	return withApp(ctx, *configPath, func(a *app) error {
		if a.tracker == nil {
			return fmt.Errorf("usage tracking is disabled")
		}
		if a.cfg.Usage.Store != "redis" {
			a.logger.Warn("usage store is in-memory, counters only cover this process")
		}

		if *userID == "" {
			u, err := a.tracker.Global(ctx)
			if err != nil {
				return err
			}
			return writeJSON(out, u)
		}
		decision, err := a.tracker.CheckLimits(ctx, *userID)
		if err != nil {
			return err
		}
		return writeJSON(out, decision)
	})
}

// withApp 加载配置、初始化日志并装配组件，fn 返回后释放资源
func withApp(ctx context.Context, configPath string, fn func(a *app) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Debug("starting DreamTeam",
		zap.String("version", Version),
		zap.String("git_commit", GitCommit),
	)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader().WithEnvPrefix("DREAMTEAM")
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// printResult 输出一次运行的结论；暂停时给出问题与恢复命令
func printResult(out io.Writer, rr *workflow.RunResult) error {
	fmt.Fprintf(out, "workflow %s: %s (step %d)\n", rr.WorkflowID, rr.Status, rr.StepIndex+1)
	switch rr.Status {
	case types.WorkflowPaused:
		if rr.Elicitation != nil {
			fmt.Fprintf(out, "\n%s asks: %s\n", rr.Elicitation.AgentID, rr.Elicitation.Question)
			fmt.Fprintf(out, "\nanswer with: dreamteam resume --workflow-id %s --answer \"...\"\n", rr.WorkflowID)
		}
	case types.WorkflowFailed:
		fmt.Fprintf(out, "error: %s\n", rr.Error)
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("DreamTeam %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`DreamTeam - multi-agent document workflows

Usage:
  dreamteam <command> [options]

Commands:
  run       Start a workflow from a definition file
  resume    Answer a pending question and continue a paused workflow
  status    Show the stored state of a workflow
  list      List stored workflows
  usage     Show today's usage for a user (or globally)
  version   Show version information
  help      Show this help message

Common options:
  --config <path>   Path to configuration file (YAML)

Options for 'run':
  --workflow <path> Workflow definition (YAML)
  --user <id>       User ID for usage accounting
  --prompt <text>   What to build
  --project <name>  Project name
  --repo <o/name>   Repository owner/name (with --branch)

Options for 'resume':
  --workflow-id <id>  Paused workflow
  --answer <text>     Answer to the pending question
  --agent <id>        Agent that continues the step

Examples:
  dreamteam run --workflow workflows/greenfield.yaml --user u1 --prompt "Invoice tracker"
  dreamteam resume --workflow-id 7f3c... --answer "Freelance designers"
  dreamteam usage --user u1`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
