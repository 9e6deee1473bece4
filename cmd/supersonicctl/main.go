package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jqzhao7/SUPERSONIC/pkg/scheduleapi"
	"github.com/jqzhao7/SUPERSONIC/pkg/scheduleclient"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "init":
		runInit(os.Args[2:])
	case "step":
		runStep(os.Args[2:])
	case "reset":
		runReset(os.Args[2:])
	case "render":
		runRender(os.Args[2:])
	case "close":
		runClose(os.Args[2:])
	case "tvm":
		runTvm(os.Args[2:])
	case "stoke":
		runStoke(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: supersonicctl <init|step|reset|render|close|tvm|stoke> [...]")
}

func serviceURL(fs *flag.FlagSet) *string {
	def := os.Getenv("SUPERSONIC_SERVICE_URL")
	if def == "" {
		def = "http://localhost:50055"
	}
	return fs.String("url", def, "schedule service base URL")
}

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	url := serviceURL(fs)
	algorithm := fs.Int("algorithm", 1, "algorithm id")
	image := fs.String("image", "", "input image")
	maxStage := fs.Int("max-stage-directive", 4, "stage/directive cap")
	_ = fs.Parse(args)
	if strings.TrimSpace(*image) == "" {
		fatalf("init requires -image")
	}

	c := scheduleclient.New(*url)
	resp, err := c.Init(context.Background(), scheduleapi.InitRequest{
		AlgorithmID:       int32(*algorithm),
		InputImage:        *image,
		MaxStageDirective: int32(*maxStage),
	})
	if err != nil {
		fatalf("init: %v", err)
	}
	fmt.Printf("session %s: stages=%d directives=%d params=%d map_range=%d init=%.3fs\n",
		resp.SessionID, resp.MaxStage, resp.MaxDirective, resp.MaxParam, resp.ScheduleMapRange, resp.InitTimeSec)
}

func runStep(args []string) {
	fs := flag.NewFlagSet("step", flag.ExitOnError)
	url := serviceURL(fs)
	sessionID := fs.String("session", "", "session id")
	mapCode := fs.Int("map-code", 0, "operation map code")
	_ = fs.Parse(args)
	requireSession(*sessionID)

	c := scheduleclient.New(*url)
	resp, err := c.Step(context.Background(), *sessionID, int32(*mapCode))
	if err != nil {
		fatalf("step: %v", err)
	}
	fmt.Printf("error=%v timeout=%v elems=%v exec=%.3fs\n",
		resp.ExecError, resp.ExecTimeout, resp.Op.ElemID, resp.ExecTimeSec)
}

func runReset(args []string) {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	url := serviceURL(fs)
	sessionID := fs.String("session", "", "session id")
	codes := fs.String("map-codes", "", "comma-separated map codes")
	_ = fs.Parse(args)
	requireSession(*sessionID)

	var mapCodes []int32
	for _, part := range strings.Split(*codes, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			fatalf("bad map code %q", part)
		}
		mapCodes = append(mapCodes, int32(n))
	}

	c := scheduleclient.New(*url)
	resp, err := c.Reset(context.Background(), *sessionID, mapCodes)
	if err != nil {
		fatalf("reset: %v", err)
	}
	for i, r := range resp.Op {
		fmt.Printf("op[%d] elems=%v\n", i, r.ElemID)
	}
}

func runRender(args []string) {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	url := serviceURL(fs)
	sessionID := fs.String("session", "", "session id")
	_ = fs.Parse(args)
	requireSession(*sessionID)

	c := scheduleclient.New(*url)
	resp, err := c.Render(context.Background(), *sessionID)
	if err != nil {
		fatalf("render: %v", err)
	}
	for _, line := range resp.ScheduleStr {
		fmt.Println(line)
	}
}

func runClose(args []string) {
	fs := flag.NewFlagSet("close", flag.ExitOnError)
	url := serviceURL(fs)
	sessionID := fs.String("session", "", "session id")
	_ = fs.Parse(args)
	requireSession(*sessionID)

	c := scheduleclient.New(*url)
	if err := c.Close(context.Background(), *sessionID); err != nil {
		fatalf("close: %v", err)
	}
	fmt.Println("closed")
}

func runTvm(args []string) {
	fs := flag.NewFlagSet("tvm", flag.ExitOnError)
	url := serviceURL(fs)
	action := fs.Int("action", 0, "action id")
	_ = fs.Parse(args)

	c := scheduleclient.New(*url)
	resp, err := c.TvmStep(context.Background(), int32(*action))
	if err != nil {
		fatalf("tvm: %v", err)
	}
	fmt.Printf("state=%s reward=%.4f max_len=%d\n", resp.State, resp.Reward, resp.MaxLen)
}

func runStoke(args []string) {
	fs := flag.NewFlagSet("stoke", flag.ExitOnError)
	url := serviceURL(fs)
	code := fs.String("code", "", "candidate code")
	cost := fs.Float64("cost", 0, "measured cost")
	_ = fs.Parse(args)
	if strings.TrimSpace(*code) == "" {
		fatalf("stoke requires -code")
	}

	c := scheduleclient.New(*url)
	resp, err := c.StokeMessage(context.Background(), *code, *cost)
	if err != nil {
		fatalf("stoke: %v", err)
	}
	fmt.Printf("action=%d\n", resp.Action)
}

func requireSession(id string) {
	if strings.TrimSpace(id) == "" {
		fatalf("missing -session")
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
