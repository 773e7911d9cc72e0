package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/logx"
	"github.com/m-lab/go/pretty"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/slackhook/static"
	"github.com/m-lab/slackhook/verifier"
)

var (
	target          = flagx.MustNewURL("http://localhost:8080/slack/actions")
	signingSecret   flagx.FileBytes
	payload         string
	timestampOffset time.Duration
	timeout         time.Duration
	logFatalf       = log.Fatalf
	stdout          = io.Writer(os.Stdout)
)

func init() {
	setupFlags()
}

func setupFlags() {
	flag.Var(&target, "url", "URL of the slackhook service")
	flag.Var(&signingSecret, "signing-secret", "File containing the Slack signing secret")
	flag.StringVar(&payload, "payload", `{"type":"block_actions"}`, "JSON payload to sign and send")
	flag.DurationVar(&timestampOffset, "timestamp-offset", 0, "Offset added to the current time for the request timestamp")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Complete the request within timeout")
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnvWithLog(flag.CommandLine, false), "Failed to read args from env")

	secret := bytes.TrimSpace(signingSecret)
	if len(secret) == 0 {
		logFatalf("ERROR: -signing-secret is empty")
		return
	}

	// Build the body the way Slack does: a form with a single payload field.
	form := url.Values{}
	form.Set(static.PayloadField, payload)
	body := form.Encode()
	ts := strconv.FormatInt(time.Now().Add(timestampOffset).Unix(), 10)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), strings.NewReader(body))
	rtx.Must(err, "Failed to create request from url: %q", target.URL)
	req.Header.Set("Content-Type", static.ContentTypeForm)
	req.Header.Set(static.HeaderTimestamp, ts)
	req.Header.Set(static.HeaderSignature, verifier.Sign(secret, ts, []byte(body)))
	logx.Debug.Println(pretty.Sprint(req.Header))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		logFatalf("ERROR: request failed: %v", err)
		return
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	rtx.Must(err, "Failed to read response")

	logx.Debug.Println("Powered by:", resp.Header.Get(static.HeaderPoweredBy))
	fmt.Fprintln(stdout, resp.Status)
	if len(b) > 0 {
		fmt.Fprintln(stdout, string(b))
	}
}
