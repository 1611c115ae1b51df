package codec_test

import (
	"context"
	"fmt"

	"github.com/jonwraymond/proccache/codec"
	"github.com/jonwraymond/proccache/process"
	"github.com/jonwraymond/proccache/store"
)

func ExampleCodec() {
	ctx := context.Background()
	c := codec.New(codec.Config{InlineLimit: 64}, store.NewMemoryStore())

	entry, err := c.Encode(ctx, process.Result{Stdout: []byte("hi\n")})
	if err != nil {
		fmt.Println("encode:", err)
		return
	}

	r, err := c.Decode(ctx, entry)
	if err != nil {
		fmt.Println("decode:", err)
		return
	}
	fmt.Printf("exit=%d stdout=%q\n", r.ExitCode, r.Stdout)
	// Output:
	// exit=0 stdout="hi\n"
}
