package app

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"horse.fit/event-pipeline/internal/dedup"
	"horse.fit/event-pipeline/internal/event"
	"horse.fit/event-pipeline/internal/fingerprint"
	"horse.fit/event-pipeline/internal/reader"
	"horse.fit/event-pipeline/internal/recovery"
)

const descriptionPreviewChars = 80

// responseExtensions are the file types a saved extraction response may use.
var responseExtensions = map[string]bool{
	".json": true,
	".txt":  true,
	".md":   true,
}

type parseResult struct {
	Files         int
	ParseFailures int
	Recovered     int
	Invalid       int
	Duplicate     int
	Accepted      []dedup.Decision
}

func runParse(args []string) int {
	fs := flag.NewFlagSet("parse", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	file := fs.String("file", "", "Single saved extraction response to parse")
	dir := fs.String("dir", "", "Directory of saved extraction responses (.json, .txt, .md)")
	recursive := fs.Bool("recursive", true, "Recursively scan subdirectories")
	prefix := fs.String("prefix", "offline", "Source prefix used to build source ids")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	var files []string
	switch {
	case strings.TrimSpace(*file) != "" && strings.TrimSpace(*dir) != "":
		fmt.Fprintln(os.Stderr, "--file and --dir are mutually exclusive")
		return 2
	case strings.TrimSpace(*file) != "":
		files = []string{strings.TrimSpace(*file)}
	case strings.TrimSpace(*dir) != "":
		collected, err := collectResponseFiles(strings.TrimSpace(*dir), *recursive)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Parse setup failed: %v\n", err)
			return 1
		}
		files = collected
	default:
		fmt.Fprintln(os.Stderr, "one of --file or --dir is required")
		return 2
	}
	if len(files) == 0 {
		fmt.Fprintf(os.Stderr, "Parse failed: no response files found under %s\n", strings.TrimSpace(*dir))
		return 1
	}

	session := dedup.NewSession(nil, nil)
	origin := dedup.Origin{Source: "offline", Prefix: strings.TrimSpace(*prefix)}
	result := parseResult{}
	for _, path := range files {
		raw, err := os.ReadFile(path)
		if err != nil {
			result.ParseFailures++
			fmt.Fprintf(os.Stderr, "UNREADABLE %s: %v\n", path, err)
			continue
		}
		if err := parseResponse(string(raw), session, origin, &result); err != nil {
			fmt.Fprintf(os.Stderr, "UNPARSEABLE %s: %v\n", path, err)
		}
	}

	for _, decision := range result.Accepted {
		printRecord(decision.Event)
	}
	fmt.Printf(
		"parse files=%d recovered=%d accepted=%d invalid=%d duplicate=%d parse_failures=%d\n",
		result.Files,
		result.Recovered,
		len(result.Accepted),
		result.Invalid,
		result.Duplicate,
		result.ParseFailures,
	)

	if result.ParseFailures > 0 {
		return 1
	}
	return 0
}

// parseResponse recovers the objects of one response, decodes them and runs
// them through the session. Parse failures are counted and returned.
func parseResponse(raw string, session *dedup.Session, origin dedup.Origin, result *parseResult) error {
	result.Files++

	objects, err := recovery.ParseEventArray(raw)
	if err != nil {
		result.ParseFailures++
		return err
	}
	result.Recovered += len(objects)

	for _, object := range objects {
		candidate, err := event.Decode(object)
		if err != nil {
			result.Invalid++
			continue
		}
		decision := session.Admit(candidate, origin)
		switch decision.Kind {
		case dedup.KindAccepted:
			result.Accepted = append(result.Accepted, decision)
		case dedup.KindRejectedDuplicate:
			result.Duplicate++
		default:
			result.Invalid++
		}
	}
	return nil
}

func printRecord(record event.Persisted) {
	description, _ := reader.TruncateText(record.Description, descriptionPreviewChars)
	fmt.Printf("%s\t%s\t%s\t%s\t%q\n",
		record.SourceID,
		fingerprint.Content(record.Candidate),
		record.Type,
		record.Name,
		description,
	)
}

func collectResponseFiles(root string, recursive bool) ([]string, error) {
	cleanRoot := strings.TrimSpace(root)
	if cleanRoot == "" {
		return nil, fmt.Errorf("directory path is empty")
	}

	info, err := os.Stat(cleanRoot)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", cleanRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", cleanRoot)
	}

	var files []string
	if !recursive {
		entries, err := os.ReadDir(cleanRoot)
		if err != nil {
			return nil, fmt.Errorf("read directory %s: %w", cleanRoot, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !isResponseFile(entry.Name()) {
				continue
			}
			files = append(files, filepath.Join(cleanRoot, entry.Name()))
		}
		sort.Strings(files)
		return files, nil
	}

	err = filepath.WalkDir(cleanRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != cleanRoot {
				return filepath.SkipDir
			}
			return nil
		}
		if isResponseFile(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory %s: %w", cleanRoot, err)
	}

	sort.Strings(files)
	return files, nil
}

func isResponseFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return responseExtensions[strings.ToLower(filepath.Ext(name))]
}
