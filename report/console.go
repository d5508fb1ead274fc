// Package report renders scenario runs for people and machines.
package report

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/c360studio/authprobe/client"
	"github.com/c360studio/authprobe/scenarios"
)

const separatorWidth = 60

// Console writes the human-readable transcript of a run.
type Console struct {
	w io.Writer
}

// NewConsole creates a Console writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

var _ scenarios.Printer = (*Console)(nil)

func (c *Console) println(a ...any) {
	fmt.Fprintln(c.w, a...)
}

func (c *Console) printf(format string, a ...any) {
	fmt.Fprintf(c.w, format, a...)
}

// Header prints the run banner.
func (c *Console) Header(title string, now time.Time) {
	c.println("\n" + strings.Repeat("=", separatorWidth))
	c.println(title)
	c.printf("Time: %s\n", now.Format("2006-01-02 15:04:05"))
	c.println(strings.Repeat("=", separatorWidth))
}

// Separator prints the divider between tests.
func (c *Console) Separator() {
	c.println("\n" + strings.Repeat("=", separatorWidth) + "\n")
}

// Section announces a test.
func (c *Console) Section(title string) {
	c.println(title)
}

// Exchange prints the status code and body of a response.
func (c *Console) Exchange(resp *client.Response) {
	c.printf("Status Code: %d\n", resp.StatusCode)
	body := resp.Pretty()
	if body == "" {
		body = "(empty body)"
	}
	c.printf("Response: %s\n", body)
}

// Outcome prints a success or failure line.
func (c *Console) Outcome(ok bool, msg string) {
	if ok {
		c.println("✅ " + msg)
		return
	}
	c.println("❌ " + msg)
}

// Notice prints a free-form line.
func (c *Console) Notice(msg string) {
	c.println(msg)
}

// Summary prints the per-stage outcome of result followed by the closing
// lines. Aborted results get no summary; the abort notice already said why.
func (c *Console) Summary(result *scenarios.Result) {
	if result.IsAborted() {
		return
	}

	c.Separator()
	c.println("Test Summary:")
	for _, stage := range result.Stages {
		c.printf("✓ %s: %s\n", stage.Title, stageWord(stage.Status))
	}
	for _, w := range result.Warnings {
		c.printf("⚠️  %s\n", w)
	}
	c.Separator()

	c.println("\n✅ All tests completed!")

	email, _ := result.GetDetailString(scenarios.DetailEmail)
	password, _ := result.GetDetailString(scenarios.DetailPassword)
	if email != "" && password != "" {
		c.println("\nNote: You can test the API manually using the following credentials:")
		c.printf("  Email: %s\n", email)
		c.printf("  Password: %s\n", password)
	}
}

func stageWord(status scenarios.StageStatus) string {
	switch status {
	case scenarios.StagePassed:
		return "Success"
	case scenarios.StageSkipped:
		return "Skipped"
	default:
		return "Failed"
	}
}

// ConnectionFailure prints the diagnostic for an unreachable service.
func (c *Console) ConnectionFailure(baseURL string) {
	c.println("\n❌ Error: Cannot connect to the server.")
	c.printf("Make sure the auth service is running on %s\n", origin(baseURL))
}

// Failure prints any other error that ended the run.
func (c *Console) Failure(err error) {
	c.printf("\n❌ Error occurred: %v\n", err)
}

// origin strips the path from baseURL: http://localhost:8080/auth becomes
// http://localhost:8080.
func origin(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return baseURL
	}
	return u.Scheme + "://" + u.Host
}
