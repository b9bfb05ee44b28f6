package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/ytpull/internal/utils"
)

// Local writes files into a directory. Data is staged in a temporary part
// file and only renamed into place once fully written.
type Local struct {
	Dir string
}

func NewLocal(dir string) *Local {
	if dir == "" {
		dir = "."
	}
	return &Local{Dir: dir}
}

func (l *Local) Save(ctx context.Context, name string, r io.Reader, size int64) (string, error) {
	name = utils.SanitizeFilename(name)
	tempDir := filepath.Join(l.Dir, utils.TempDirName)
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return "", fmt.Errorf("error creating temp directory: %v", err)
	}
	part, err := os.CreateTemp(tempDir, name+".*.part")
	if err != nil {
		return "", fmt.Errorf("error creating part file: %v", err)
	}
	partPath := part.Name()
	written, err := io.CopyBuffer(part, &ctxReader{ctx: ctx, r: r}, make([]byte, utils.DefaultBufferSize))
	closeErr := part.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && size > 0 && written != size {
		err = fmt.Errorf("size mismatch: wrote %d of %d bytes", written, size)
	}
	if err != nil {
		os.Remove(partPath)
		return "", fmt.Errorf("error writing %s: %v", name, err)
	}

	outputPath := filepath.Join(l.Dir, name)
	if _, err := os.Stat(outputPath); err == nil {
		outputPath = utils.RenewOutputPath(outputPath)
	}
	if err := os.Rename(partPath, outputPath); err != nil {
		os.Remove(partPath)
		return "", fmt.Errorf("error moving file into place: %v", err)
	}
	log.Debug().Str("op", "sink/local").Msgf("saved %s (%s)", outputPath, utils.FormatBytes(uint64(written)))
	return outputPath, nil
}

// Cleanup removes the staging directory.
func (l *Local) Cleanup() error {
	return utils.CleanLocal(l.Dir)
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
