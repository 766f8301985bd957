package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"docquery/internal/engine"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	okColor     = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
)

// runInteractive is the conversational front end: read a query, resolve it,
// show the answer and where the trace was saved.
func runInteractive(ctx context.Context, eng *engine.Engine) error {
	printWelcome()
	showFiles(eng)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Println("\n" + strings.Repeat("-", 60))
		fmt.Print("\nEnter your query (or 'help' for commands): ")
		if !scanner.Scan() {
			fmt.Println("\nGoodbye!")
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch strings.ToLower(input) {
		case "quit", "exit", "q":
			fmt.Println("\nGoodbye!")
			return nil
		case "help":
			printHelp()
			continue
		case "files":
			showFiles(eng)
			continue
		case "sessions":
			showSessions(eng)
			continue
		}

		sessionID := eng.NewSessionID()
		fmt.Printf("\nProcessing query (session %s)...\n", sessionID)

		trace, err := eng.ResolveQuery(ctx, sessionID, input)
		if err != nil && trace == nil {
			warnColor.Printf("Error processing query: %v\n", err)
			continue
		}

		fmt.Println("\n" + strings.Repeat("=", 60))
		headerColor.Println("FINAL RESULT")
		fmt.Println(strings.Repeat("=", 60))
		fmt.Println(trace.FinalAnswer)
		fmt.Println(strings.Repeat("=", 60))
		okColor.Printf("Session saved: session_%s.json\n", trace.SessionID)
		fmt.Printf("Iterations used: %d/%d\n", trace.TotalIterations, trace.MaxIterationsAllowed)
		if len(trace.FilesAccessed) > 0 {
			fmt.Printf("Files accessed: %s\n", strings.Join(trace.FilesAccessed, ", "))
		}
		if err != nil {
			warnColor.Printf("Warning: trace persistence failed: %v\n", err)
		}
	}
}

func printWelcome() {
	fmt.Println("\n" + strings.Repeat("=", 60))
	headerColor.Println("DOCQUERY - Interactive Mode")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("Ask questions about your documents and I'll analyze them!")
	printHelp()
	fmt.Println(strings.Repeat("=", 60))
}

func printHelp() {
	fmt.Println("\nCommands:")
	fmt.Println("  'quit' or 'exit' - Exit the program")
	fmt.Println("  'files'          - Show available files")
	fmt.Println("  'sessions'       - Show recent query sessions")
}

func showFiles(eng *engine.Engine) {
	files, err := eng.Docs().Available()
	if err != nil {
		warnColor.Printf("Could not list files: %v\n", err)
		return
	}
	if len(files) == 0 {
		warnColor.Println("\nNo files found in the documents directory")
		fmt.Println("  Add PDF, XML, or TXT files to start querying")
		return
	}
	fmt.Printf("\nAvailable files (%d):\n", len(files))
	for i, f := range files {
		fmt.Printf("  %d. %s\n", i+1, f)
	}
}

func showSessions(eng *engine.Engine) {
	const limit = 5
	summaries, err := eng.Sessions().List()
	if err != nil {
		warnColor.Printf("Could not list sessions: %v\n", err)
		return
	}
	if len(summaries) == 0 {
		fmt.Println("\nNo previous sessions found")
		return
	}
	fmt.Printf("\nRecent sessions (showing last %d):\n", limit)
	for i, s := range summaries {
		if i == limit {
			break
		}
		fmt.Printf("  %d. %s | %d iterations | %d files\n", i+1, s.Date, s.MessageCount, len(s.FilesAccessed))
	}
}
