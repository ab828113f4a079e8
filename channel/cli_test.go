package channel

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/linanwx/nagochat/conversation"
	"github.com/linanwx/nagochat/provider"
)

type echoProvider struct {
	got []string
}

func (p *echoProvider) Chat(_ context.Context, req *provider.Request) (*provider.Response, error) {
	text := req.Messages[len(req.Messages)-1].Content
	p.got = append(p.got, text)
	if text == "boom" {
		return nil, errors.New("boom")
	}
	return &provider.Response{Content: "echo: " + text}, nil
}

func TestRunPlain(t *testing.T) {
	p := &echoProvider{}
	ctrl := conversation.New(p, conversation.Options{Greeting: "welcome"})
	defer ctrl.Close()

	in := strings.NewReader("hello\n\n   \nboom\nquit\nnever\n")
	var out bytes.Buffer
	if err := RunPlain(context.Background(), ctrl, in, &out); err != nil {
		t.Fatalf("RunPlain: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"bot> welcome",
		"bot> echo: hello",
		"bot> " + conversation.DefaultFallback,
		"Goodbye!",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "never") {
		t.Error("input after quit was processed")
	}
	if len(p.got) != 2 {
		t.Errorf("provider calls = %q, want 2 (blank lines skipped)", p.got)
	}
}

func TestRunPlainEOF(t *testing.T) {
	ctrl := conversation.New(&echoProvider{}, conversation.Options{})
	defer ctrl.Close()

	var out bytes.Buffer
	if err := RunPlain(context.Background(), ctrl, strings.NewReader("hi"), &out); err != nil {
		t.Fatalf("RunPlain: %v", err)
	}
	if !strings.Contains(out.String(), "bot> echo: hi") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestRunPlainClosedConversation(t *testing.T) {
	ctrl := conversation.New(&echoProvider{}, conversation.Options{})
	ctrl.Close()

	var out bytes.Buffer
	err := RunPlain(context.Background(), ctrl, strings.NewReader("hi\n"), &out)
	if !errors.Is(err, conversation.ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}
