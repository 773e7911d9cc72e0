package main

import (
	"bytes"
	"flag"
	"net/http"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/m-lab/go/rtx"
	v1 "github.com/m-lab/slackhook/api/v1"
	"github.com/m-lab/slackhook/slacktest"
)

func Test_main(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		secret    string
		wantFatal bool
		wantOut   string
		wantCalls int
	}{
		{
			name:      "success-signed-request",
			args:      []string{"signed-request", `-payload={"type":"block_actions"}`},
			secret:    "insecure-signing-secret\n",
			wantOut:   "200 OK\nok\n",
			wantCalls: 1,
		},
		{
			name:      "success-stale-timestamp-rejected",
			args:      []string{"signed-request", "-timestamp-offset=-10m"},
			secret:    "insecure-signing-secret",
			wantOut:   "404 Not Found\n",
			wantCalls: 0,
		},
		{
			name:      "error-empty-secret",
			args:      []string{"signed-request"},
			secret:    "\n",
			wantFatal: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Completely reset command line flags, since main parses them.
			os.Args = tt.args
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)
			setupFlags()

			fatal := false
			logFatalf = func(format string, v ...interface{}) { fatal = true }
			out := &bytes.Buffer{}
			stdout = out

			d := &slacktest.Dispatcher{Result: v1.NewResult(http.StatusOK, "ok")}
			srv := slacktest.NewServer("insecure-signing-secret", d)
			defer srv.Close()
			var err error
			target.URL, err = url.Parse(srv.URL + "/slack/actions")
			rtx.Must(err, "failed to parse url: %q", srv.URL)
			timeout = 5 * time.Second
			signingSecret = []byte(tt.secret)

			main()

			if fatal != tt.wantFatal {
				t.Errorf("main() fatal = %t, want %t", fatal, tt.wantFatal)
			}
			if out.String() != tt.wantOut {
				t.Errorf("main() output = %q, want %q", out.String(), tt.wantOut)
			}
			if got := len(d.Events()); got != tt.wantCalls {
				t.Errorf("main() dispatched %d events, want %d", got, tt.wantCalls)
			}
		})
	}
}
