package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

const ENV_PROD_CONFIG = ".env"

const COMMAND_SERVE = "serve"
const COMMAND_DAILY_AI_ANALYSIS = "daily_ai_analysis"
const COMMAND_DAILY_AI_MODE_ANALYSIS = "daily_ai_mode_analysis"
const COMMAND_DAILY_LLM_MONITORING = "daily_llm_monitoring"
const COMMAND_IMPORT_KEYWORDS = "import_keywords"

func main() {
	configFile := flag.String("config", ENV_PROD_CONFIG, "Configuration file to load (e.g., .env, .dev.env)")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.BoolVar(showHelp, "h", false, "Show help information (shorthand)")
	projectID := flag.String("project", "", "Project id for import_keywords")
	csvPath := flag.String("csv", "", "CSV file path for import_keywords")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Serplens - AI Search Brand Visibility Engine\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options] [command]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  serve                   Long-lived process with in-process daily cron (default)\n")
		fmt.Fprintf(os.Stderr, "  daily_ai_analysis       Run the AI Overview batch for domain projects and exit\n")
		fmt.Fprintf(os.Stderr, "  daily_ai_mode_analysis  Run the AI Mode batch for brand projects and exit\n")
		fmt.Fprintf(os.Stderr, "  daily_llm_monitoring    Run assistant monitoring for all projects and exit\n")
		fmt.Fprintf(os.Stderr, "  import_keywords         Import keywords from CSV (-project, -csv required)\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fmt.Fprintf(os.Stderr, "  -config string\n")
		fmt.Fprintf(os.Stderr, "        Configuration file to load (default: .env)\n")
		fmt.Fprintf(os.Stderr, "  -help, -h\n")
		fmt.Fprintf(os.Stderr, "        Show this help information\n\n")
		fmt.Fprintf(os.Stderr, "Note: Environment variables override config file values\n")
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if *configFile != "" {
		err := godotenv.Load(*configFile)
		if err != nil {
			log.Printf("Warning: Failed to load config file %s: %v", *configFile, err)
			log.Println("Continuing with environment variables...")
		} else {
			log.Printf("Loaded configuration from %s", *configFile)
		}
	}

	command := COMMAND_SERVE
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	container, err := BuildContainer()
	if err != nil {
		log.Fatalf("Failed to build container: %v", err)
	}

	err = container.Invoke(func(app *Application) error {
		if err := app.Initialize(); err != nil {
			return fmt.Errorf("initialize: %w", err)
		}
		defer app.Shutdown()

		switch command {
		case COMMAND_SERVE:
			return app.Run()
		case COMMAND_DAILY_AI_ANALYSIS, COMMAND_DAILY_AI_MODE_ANALYSIS, COMMAND_DAILY_LLM_MONITORING:
			return app.RunBatch(context.Background(), command)
		case COMMAND_IMPORT_KEYWORDS:
			if *projectID == "" || *csvPath == "" {
				return fmt.Errorf("import_keywords requires -project and -csv")
			}
			return app.ImportKeywords(*projectID, *csvPath)
		default:
			return fmt.Errorf("unknown command: %s", command)
		}
	})
	if err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}
