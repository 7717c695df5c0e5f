package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"mediassist/api"
	"mediassist/clipboard"
	"mediassist/fault"
)

var errQuit = errors.New("quit")

const dateLayout = "2006-01-02 15:04"

type command struct {
	name  string
	usage string
	help  string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands map[string]command

func init() {
	commands = make(map[string]command)
	for _, c := range []command{
		{"reports", "", "list uploaded medical reports", cmdReports},
		{"upload", "<path>", "upload a medical report", cmdUpload},
		{"download", "<id> [dest]", "download a report", cmdDownload},
		{"delete", "<id>", "delete a report", cmdDelete},
		{"analyze", "", "run a deep analysis over all reports", cmdAnalyze},
		{"results", "", "list finished analyses", cmdResults},
		{"result", "<id>", "show one analysis", cmdResult},
		{"history", "", "show recent local activity", cmdHistory},
		{"copy", "", "copy the last reply to the clipboard", cmdCopy},
		{"help", "", "show this list", cmdHelp},
		{"quit", "", "exit", func(context.Context, *app, []string) error { return errQuit }},
	} {
		commands[c.name] = c
	}
}

// submit handles one line from the compose field: slash commands run
// locally, anything else is sent to the assistant.
func (a *app) submit(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		if a.composeLocked() {
			return errComposeLocked
		}
		a.send(ctx, line)
		return nil
	}

	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return fmt.Errorf("empty command (try /help)")
	}
	cmd, ok := commands[strings.ToLower(fields[0])]
	if !ok {
		return fmt.Errorf("unknown command /%s (try /help)", fields[0])
	}
	return cmd.run(ctx, a, fields[1:])
}

func usageError(name string) error {
	c := commands[name]
	return fmt.Errorf("usage: /%s %s", c.name, c.usage)
}

func cmdReports(ctx context.Context, a *app, _ []string) error {
	reports, err := a.refreshReports(ctx)
	if err != nil {
		return err
	}
	a.display.Show(fmt.Sprintf("Medical reports (%d)", len(reports)), reportLines(reports))
	return nil
}

func cmdUpload(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return usageError("upload")
	}
	path := strings.Join(args, " ")
	rep, err := a.client.UploadReport(ctx, path)
	if err != nil {
		return err
	}
	name := filepath.Base(path)
	if rep != nil && rep.Filename != "" {
		name = rep.Filename
	}
	a.display.Notice(LevelSuccess, "Uploaded "+name)
	return cmdReports(ctx, a, nil)
}

func cmdDownload(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return usageError("download")
	}
	data, name, err := a.client.DownloadReport(ctx, args[0])
	if err != nil {
		return err
	}
	if name == "" {
		name = args[0]
	}
	dest := filepath.Base(name)
	if len(args) == 2 {
		dest = args[1]
		if fi, err := os.Stat(dest); err == nil && fi.IsDir() {
			dest = filepath.Join(dest, filepath.Base(name))
		}
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fault.New(fault.Precondition, "", fmt.Errorf("save %s: %w", dest, err))
	}
	a.display.Notice(LevelSuccess, fmt.Sprintf("Saved %s (%d bytes)", dest, len(data)))
	return nil
}

func cmdDelete(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return usageError("delete")
	}
	if err := a.client.DeleteReport(ctx, args[0]); err != nil {
		return err
	}
	a.display.Notice(LevelSuccess, "Deleted report "+args[0])
	return cmdReports(ctx, a, nil)
}

func cmdAnalyze(ctx context.Context, a *app, _ []string) error {
	if !a.analysis.Busy() {
		label := a.busyLabel()
		if label != "" {
			label += " | "
		}
		a.display.Busy(label + "starting analysis")
	}
	err := a.analysis.Trigger(ctx)
	a.refreshBusy()
	if err != nil && fault.KindOf(err) != fault.Precondition {
		// The controller has already reported it.
		return nil
	}
	return err
}

func cmdResults(ctx context.Context, a *app, _ []string) error {
	summaries, err := a.client.AnalysisReports(ctx)
	if err != nil {
		return err
	}
	a.display.Show(fmt.Sprintf("Analyses (%d)", len(summaries)), summaryLines(summaries))
	return nil
}

func cmdResult(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return usageError("result")
	}
	rep, err := a.client.AnalysisReport(ctx, args[0])
	if err != nil {
		return err
	}
	var lines []string
	if len(rep.Filenames) > 0 {
		lines = append(lines, "Reports: "+strings.Join(rep.Filenames, ", "), "")
	}
	lines = append(lines, strings.Split(rep.Text(), "\n")...)
	a.display.Show("Analysis "+args[0]+stamp(api.AnalysisSummary{Timestamp: rep.Timestamp}.Time()), lines)
	return nil
}

func cmdHistory(_ context.Context, a *app, _ []string) error {
	if a.history == nil {
		return fault.New(fault.Precondition, "", errors.New("history is disabled"))
	}
	analyses, err := a.history.RecentAnalyses(10)
	if err != nil {
		return err
	}
	transcriptions, err := a.history.RecentTranscriptions(10)
	if err != nil {
		return err
	}

	lines := []string{"Analyses:"}
	for _, h := range analyses {
		line := fmt.Sprintf("  %s  %-20s %d report(s)  %s", h.StartedAt.Local().Format(dateLayout), h.Status, h.FileCount, h.ID)
		if h.Error != "" {
			line += "  " + h.Error
		}
		lines = append(lines, line)
	}
	lines = append(lines, "", "Dictations:")
	for _, h := range transcriptions {
		text := h.Text
		if h.Error != "" {
			text = "failed: " + h.Error
		}
		lines = append(lines, fmt.Sprintf("  %s  %-7s %s", h.CreatedAt.Local().Format(dateLayout), h.Target, text))
	}
	a.display.Show("History", lines)
	return nil
}

func cmdCopy(_ context.Context, a *app, _ []string) error {
	reply := a.reply()
	if reply == "" {
		return fault.New(fault.Precondition, "", errors.New("nothing to copy yet"))
	}
	if err := clipboard.Copy(reply); err != nil {
		return err
	}
	a.display.Notice(LevelSuccess, "Copied last reply to the clipboard")
	return nil
}

func cmdHelp(_ context.Context, a *app, _ []string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := []string{"Hold Ctrl+Space to dictate; hold Shift too to dictate into the compose field."}
	for _, name := range names {
		c := commands[name]
		lines = append(lines, fmt.Sprintf("  %-22s %s", strings.TrimSpace("/"+c.name+" "+c.usage), c.help))
	}
	a.display.Show("Commands", lines)
	return nil
}

func reportLines(reports []api.Report) []string {
	if len(reports) == 0 {
		return []string{"No medical reports uploaded yet. Use /upload <path>."}
	}
	lines := make([]string, 0, len(reports))
	for _, r := range reports {
		lines = append(lines, fmt.Sprintf("%s  %s%s", r.ID, r.Filename, stamp(r.Uploaded())))
	}
	return lines
}

func summaryLines(summaries []api.AnalysisSummary) []string {
	if len(summaries) == 0 {
		return []string{"No analyses yet."}
	}
	lines := make([]string, 0, len(summaries))
	for _, s := range summaries {
		lines = append(lines, fmt.Sprintf("%s  %d report(s)%s", s.ReportID, s.FileCount, stamp(s.Time())))
	}
	return lines
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return "  (" + t.Local().Format(dateLayout) + ")"
}
