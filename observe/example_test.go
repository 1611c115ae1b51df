package observe_test

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/jonwraymond/proccache/observe"
	"github.com/jonwraymond/proccache/process"
)

func ExampleMiddleware_Wrap() {
	var logs bytes.Buffer
	mw := observe.NewMiddleware(nil, nil, observe.NewLoggerWithWriter("info", &logs))

	exec, err := mw.Wrap("fake", process.ExecutorFunc(func(context.Context, process.Request) (process.Result, error) {
		return process.Result{Stdout: []byte("hi\n")}, nil
	}))
	if err != nil {
		fmt.Println(err)
		return
	}

	r, _ := exec.Run(context.Background(), process.Request{Argv: []string{"echo", "hi"}})
	fmt.Printf("%q\n", r.Stdout)
	fmt.Println(strings.Contains(logs.String(), `"run.command":"echo hi"`))
	// Output:
	// "hi\n"
	// true
}
