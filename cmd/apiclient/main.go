// Command apiclient is a small CLI that publishes one API request to a
// running Brain and prints its reply, reproducing the original mockup
// API server's manual-testing role.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/weitingchou/jagereye/internal/bus"
	"github.com/weitingchou/jagereye/internal/domain"
	"github.com/weitingchou/jagereye/internal/wire"
)

const subjectAPI = "ch_api_brain"

func main() {
	mqHost := flag.String("mq-host", "localhost:6379", "message bus address")
	command := flag.String("command", wire.CmdReqAnalyzerStatus, "START_ANALYZER | STOP_ANALYZER | REQ_ANALYZER_STATUS")
	id := flag.String("id", "", "analyzer id")
	typename := flag.String("type", "", "analyzer type (required for START_ANALYZER)")
	url := flag.String("url", "", "video source url (START_ANALYZER)")
	pipelines := flag.String("pipelines", "", "comma-separated pipeline names (START_ANALYZER)")
	timeout := flag.Duration("timeout", 5*time.Second, "reply timeout")
	flag.Parse()

	req := wire.ApiRequest{
		Command: *command,
		Params: wire.ApiParams{
			ID:   *id,
			Type: *typename,
		},
	}
	if *command == wire.CmdStartAnalyzer {
		req.Params.Source = domain.Source{"url": *url}
		for _, name := range strings.Split(*pipelines, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			req.Params.Pipelines = append(req.Params.Pipelines, domain.Pipeline{Name: name})
		}
	}

	b, err := bus.NewRedis(*mqHost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "apiclient: connect: %v\n", err)
		os.Exit(1)
	}
	defer b.Close()

	ctx := context.Background()
	data, err := bus.Request(ctx, b, subjectAPI, func(replyTo string) ([]byte, error) {
		req.ReplyTo = replyTo
		return json.Marshal(req)
	}, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "apiclient: request failed: %v\n", err)
		os.Exit(1)
	}

	var reply wire.ApiReply
	if err := json.Unmarshal(data, &reply); err != nil {
		fmt.Fprintf(os.Stderr, "apiclient: malformed reply: %v\n", err)
		os.Exit(1)
	}

	pretty, _ := json.MarshalIndent(reply, "", "  ")
	fmt.Println(string(pretty))
}
