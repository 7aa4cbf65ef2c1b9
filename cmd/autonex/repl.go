package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/autonex-agency/autonex/pkg/app"
	"github.com/autonex-agency/autonex/pkg/core/chat"
	"github.com/autonex-agency/autonex/pkg/core/types"
)

const helpText = `Commands:
  /new                          start a new chat
  /sessions                     list chats
  /select <id>                  switch to a chat
  /clear                        delete every chat
  /image <path> <prompt>        edit an image
  /video <path> <prompt>        analyze a video
  /imagine [16:9|9:16] <prompt> generate an image
  /think <prompt>               answer with extended reasoning
  /say <text>                   speak text aloud
  /transcribe <path>            transcribe an audio file
  /voice, /stop                 start or stop a voice conversation
  /memory on|off                personalize answers across chats
  /history on|off               keep multi-turn context in chat
  /forget                       drop model-side conversation memory
  /theme                        toggle light and dark
  /login, /logout
  /quit`

type command struct {
	Name string
	Args string
}

// parseCommand splits "/name rest of line". ok is false for plain chat lines.
func parseCommand(line string) (cmd command, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{}, false
	}
	name, args, _ := strings.Cut(line, " ")
	return command{Name: strings.ToLower(name), Args: strings.TrimSpace(args)}, true
}

// splitFirst returns the first whitespace-separated word of s and the trimmed remainder.
func splitFirst(s string) (head, tail string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i+1:])
}

// parseImagine extracts an optional leading aspect ratio.
func parseImagine(args string) (aspect, prompt string) {
	head, tail := splitFirst(args)
	switch head {
	case chat.AspectLandscape, chat.AspectPortrait:
		return head, tail
	}
	return chat.AspectLandscape, strings.TrimSpace(args)
}

func parseToggle(arg string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", arg)
}

// detectMIME prefers the file extension and falls back to content sniffing.
func detectMIME(path string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		if mt, _, err := mime.ParseMediaType(t); err == nil {
			return mt
		}
	}
	t := http.DetectContentType(data)
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return t
}

// loadAttachment reads path and checks that its media type has the given top-level kind.
func loadAttachment(path, kind string) (*chat.Attachment, error) {
	if path == "" {
		return nil, errors.New("missing file path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	mt := detectMIME(path, data)
	if !strings.HasPrefix(mt, kind+"/") {
		return nil, fmt.Errorf("%s is %s, want %s/*", path, mt, kind)
	}
	return &chat.Attachment{Data: data, MIMEType: mt}, nil
}

// decodeDataURL returns the payload and media type of a base64 data: URL.
func decodeDataURL(ref string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(ref, "data:")
	if !ok {
		return nil, "", errors.New("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", errors.New("malformed data URL")
	}
	mt, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return nil, "", errors.New("data URL is not base64")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", err
	}
	return data, mt, nil
}

// saveImage writes a model image next to the working directory and returns the file name.
func saveImage(dir, id, ref string) (string, error) {
	data, mt, err := decodeDataURL(ref)
	if err != nil {
		return "", err
	}
	ext := ".img"
	if exts, _ := mime.ExtensionsByType(mt); len(exts) > 0 {
		ext = exts[0]
	}
	name := filepath.Join(dir, "autonex-"+id+ext)
	if err := os.WriteFile(name, data, 0o644); err != nil {
		return "", err
	}
	return name, nil
}

type repl struct {
	app      *app.App
	pipeline *chat.Pipeline
	voice    voiceControl
	out      io.Writer
	errOut   io.Writer

	// imageDir is where generated and edited images are written. Empty means the working directory.
	imageDir string
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	if in == nil {
		in = os.Stdin
	}
	if r.out == nil {
		r.out = os.Stdout
	}
	if r.errOut == nil {
		r.errOut = os.Stderr
	}

	fmt.Fprintln(r.out, "Autonex. Type /help for commands.")
	if !r.app.Preferences().SeenWelcome {
		fmt.Fprintln(r.out, app.GreetingText)
		if err := r.app.MarkWelcomeSeen(ctx); err != nil {
			fmt.Fprintf(r.errOut, "save preferences: %v\n", err)
		}
	}
	if s, ok := r.app.ActiveSession(); ok {
		fmt.Fprintf(r.out, "chat: %s (%s)\n", s.Title, s.ID)
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			fmt.Fprintln(r.out)
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cmd, isCommand := parseCommand(line)
		if !isCommand {
			r.send(ctx, app.Input{Text: line})
			continue
		}
		if cmd.Name == "/quit" || cmd.Name == "/exit" {
			fmt.Fprintln(r.out, "bye")
			return nil
		}
		if err := r.handle(ctx, cmd); err != nil {
			fmt.Fprintf(r.errOut, "%s: %v\n", cmd.Name, err)
		}
	}
}

func (r *repl) handle(ctx context.Context, cmd command) error {
	switch cmd.Name {
	case "/help":
		fmt.Fprintln(r.out, helpText)
	case "/new":
		s := r.app.NewChat(ctx)
		fmt.Fprintf(r.out, "new chat %s\n", s.ID)
	case "/sessions":
		active, _ := r.app.ActiveSession()
		for _, s := range r.app.Sessions() {
			marker := " "
			if s.ID == active.ID {
				marker = "*"
			}
			fmt.Fprintf(r.out, "%s %s  %s (%d messages)\n", marker, s.ID, s.Title, len(s.Messages))
		}
	case "/select":
		if cmd.Args == "" {
			return errors.New("usage: /select <id>")
		}
		if err := r.app.SelectSession(ctx, cmd.Args); err != nil {
			return err
		}
		s, _ := r.app.ActiveSession()
		r.printTranscript(s)
	case "/clear":
		return r.app.ClearHistory(ctx)
	case "/image", "/video":
		path, prompt := splitFirst(cmd.Args)
		kind := strings.TrimPrefix(cmd.Name, "/")
		att, err := loadAttachment(path, kind)
		if err != nil {
			return err
		}
		in := app.Input{Text: prompt}
		if kind == "image" {
			in.Image = att
		} else {
			in.Video = att
		}
		r.send(ctx, in)
	case "/imagine":
		aspect, prompt := parseImagine(cmd.Args)
		if prompt == "" {
			return errors.New("usage: /imagine [16:9|9:16] <prompt>")
		}
		r.send(ctx, app.Input{Text: prompt, GenerateImage: true, AspectRatio: aspect})
	case "/think":
		if cmd.Args == "" {
			return errors.New("usage: /think <prompt>")
		}
		r.send(ctx, app.Input{Text: cmd.Args, Thinking: true})
	case "/say":
		if cmd.Args == "" {
			return errors.New("usage: /say <text>")
		}
		pcm, err := r.pipeline.GenerateSpeech(ctx, cmd.Args)
		if err != nil {
			return err
		}
		if len(pcm) == 0 {
			return errors.New("no audio produced")
		}
		return r.voice.Play(pcm)
	case "/transcribe":
		att, err := loadAttachment(cmd.Args, "audio")
		if err != nil {
			return err
		}
		fmt.Fprintln(r.out, r.pipeline.TranscribeAudio(ctx, *att))
	case "/voice":
		return r.voice.Start(context.WithoutCancel(ctx))
	case "/stop":
		r.voice.Stop()
	case "/memory", "/history":
		on, err := parseToggle(cmd.Args)
		if err != nil {
			return err
		}
		if cmd.Name == "/memory" {
			err = r.app.SetMemory(ctx, on)
		} else {
			err = r.app.SetChatHistory(ctx, on)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "%s %s\n", strings.TrimPrefix(cmd.Name, "/"), onOff(on))
	case "/forget":
		r.app.ClearMemory()
	case "/theme":
		theme, err := r.app.ToggleTheme(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "theme %s\n", theme)
	case "/login":
		return r.app.Login(ctx)
	case "/logout":
		return r.app.Logout(ctx)
	default:
		return errors.New("unknown command, try /help")
	}
	return nil
}

// send streams one reply, printing text as it grows.
func (r *repl) send(ctx context.Context, in app.Input) {
	printed := 0
	in.OnUpdate = func(msg types.Message) {
		if len(msg.Text) < printed {
			fmt.Fprintln(r.out)
			printed = 0
		}
		fmt.Fprint(r.out, msg.Text[printed:])
		printed = len(msg.Text)
	}

	reply, err := r.app.SendMessage(ctx, in)
	if err != nil {
		fmt.Fprintf(r.errOut, "send: %v\n", err)
		return
	}
	fmt.Fprintln(r.out)
	r.printExtras(reply)
}

func (r *repl) printExtras(msg types.Message) {
	for i, src := range msg.Sources {
		title := src.Web.Title
		if title == "" {
			title = src.Web.URI
		}
		fmt.Fprintf(r.out, "  [%d] %s %s\n", i+1, title, src.Web.URI)
	}
	for _, ref := range []string{msg.GeneratedImageRef, msg.EditedImageRef} {
		if ref == "" {
			continue
		}
		name, err := saveImage(r.imageDir, msg.ID, ref)
		if err != nil {
			fmt.Fprintf(r.errOut, "save image: %v\n", err)
			continue
		}
		fmt.Fprintf(r.out, "  image saved to %s\n", name)
	}
}

func (r *repl) printTranscript(s types.ChatSession) {
	fmt.Fprintf(r.out, "chat: %s (%s)\n", s.Title, s.ID)
	for _, msg := range s.Messages {
		fmt.Fprintf(r.out, "[%s] %s\n", msg.Sender, msg.Text)
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
