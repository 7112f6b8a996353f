package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"safetysec/pkg/logger"
	"safetysec/pkg/storage"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CaptureDevice opens a low-quality video stream from the device's
// front-facing camera pipeline. Implementations must honor context
// cancellation on Open and stop producing data once the returned stream is
// closed.
type CaptureDevice interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// StreamDevice reads the camera pipeline from a device node or FIFO fed by
// the capture daemon.
type StreamDevice struct {
	Path string
}

func (d *StreamDevice) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(d.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture device %s: %w", d.Path, err)
	}
	return f, nil
}

// EvidenceRecorder captures a bounded-duration clip into a temporary file and
// uploads it to object storage under a path scoped by the protected user.
// Every failure path returns an error instead of leaving the caller waiting;
// the workflow treats those as non-fatal.
type EvidenceRecorder struct {
	device CaptureDevice
	store  storage.Provider
	tmpDir string
	log    *logger.Logger
}

func NewEvidenceRecorder(device CaptureDevice, store storage.Provider, tmpDir string, log *logger.Logger) *EvidenceRecorder {
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	return &EvidenceRecorder{
		device: device,
		store:  store,
		tmpDir: tmpDir,
		log:    log,
	}
}

// Record captures from the device for at most maxDuration and returns the
// local file path. The clip stops automatically when the duration elapses or
// the parent context is cancelled.
func (r *EvidenceRecorder) Record(ctx context.Context, maxDuration time.Duration) (string, error) {
	recCtx, cancel := context.WithTimeout(ctx, maxDuration)
	defer cancel()

	stream, err := r.device.Open(recCtx)
	if err != nil {
		return "", fmt.Errorf("camera bind failed: %w", err)
	}
	defer stream.Close()

	file, err := os.CreateTemp(r.tmpDir, "alert_*.mp4")
	if err != nil {
		return "", fmt.Errorf("failed to create evidence file: %w", err)
	}

	copied := make(chan error, 1)
	go func() {
		_, copyErr := io.Copy(file, stream)
		copied <- copyErr
	}()

	select {
	case <-recCtx.Done():
		// Recording window over, or the caller pulled the plug. Closing
		// the stream unblocks the copy either way.
		stream.Close()
		<-copied
		if ctx.Err() != nil {
			file.Close()
			os.Remove(file.Name())
			return "", fmt.Errorf("recording aborted: %w", ctx.Err())
		}
	case copyErr := <-copied:
		if copyErr != nil {
			file.Close()
			os.Remove(file.Name())
			return "", fmt.Errorf("recording error: %w", copyErr)
		}
	}

	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return "", fmt.Errorf("failed to finalize evidence file: %w", err)
	}
	return file.Name(), nil
}

// Upload pushes the local clip to object storage and resolves a retrievable
// URL. The temporary file is removed on success.
func (r *EvidenceRecorder) Upload(ctx context.Context, protectedID primitive.ObjectID, localPath string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open evidence file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat evidence file: %w", err)
	}

	key := fmt.Sprintf("alerts/%s/%s", protectedID.Hex(), filepath.Base(localPath))
	resp, err := r.store.Upload(ctx, &storage.UploadRequest{
		Key:         key,
		Reader:      file,
		ContentType: "video/mp4",
		Size:        info.Size(),
	})
	if err != nil {
		return "", fmt.Errorf("evidence upload failed: %w", err)
	}

	if removeErr := os.Remove(localPath); removeErr != nil {
		r.log.WithError(removeErr).Warn("failed to remove local evidence file")
	}

	r.log.WithField("key", key).WithField("size", info.Size()).Info("evidence uploaded")
	return resp.URL, nil
}
