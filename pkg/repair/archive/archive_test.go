package archive

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vango-go/midas/pkg/repair/camera"
	"github.com/vango-go/midas/pkg/repair/session"
)

type putCall struct {
	bucket, key, contentType string
	body                     []byte
}

type fakeS3 struct {
	mu    sync.Mutex
	calls []putCall
	err   error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(in.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, putCall{
		bucket:      aws.ToString(in.Bucket),
		key:         aws.ToString(in.Key),
		contentType: aws.ToString(in.ContentType),
		body:        body,
	})
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestArchive_Key(t *testing.T) {
	a := New(&fakeS3{}, "bucket", "/frames/", nil)
	if got := a.Key("s1", "t1", "image/jpeg"); got != "frames/s1/t1.jpg" {
		t.Fatalf("key=%q", got)
	}
	if got := a.Key("s1", "t2", "image/png"); got != "frames/s1/t2.png" {
		t.Fatalf("key=%q", got)
	}
	if got := New(&fakeS3{}, "bucket", "", nil).Key("s1", "t1", ""); got != "s1/t1.jpg" {
		t.Fatalf("key=%q", got)
	}
}

func TestArchive_OnTurn(t *testing.T) {
	client := &fakeS3{}
	a := New(client, "midas-frames", "turns", nil)

	a.OnTurn(session.TurnReport{SessionID: "s1", TurnID: "t1"})
	a.OnTurn(session.TurnReport{
		SessionID: "s1",
		TurnID:    "t2",
		Frame:     &camera.Frame{Data: []byte("jpeg"), MediaType: "image/jpeg"},
	})
	a.Wait()

	if len(client.calls) != 1 {
		t.Fatalf("calls=%d, want 1", len(client.calls))
	}
	c := client.calls[0]
	if c.bucket != "midas-frames" || c.key != "turns/s1/t2.jpg" || c.contentType != "image/jpeg" || string(c.body) != "jpeg" {
		t.Fatalf("call=%+v", c)
	}
}

func TestArchive_PutError(t *testing.T) {
	a := New(&fakeS3{err: errors.New("denied")}, "b", "", nil)
	if _, err := a.Put(context.Background(), "s", "t", camera.Frame{Data: []byte("x")}); err == nil {
		t.Fatalf("expected error")
	}
	a.OnTurn(session.TurnReport{SessionID: "s", TurnID: "t", Frame: &camera.Frame{Data: []byte("x")}})
	a.Wait()
}
