package cli

import (
	"github.com/relicta-tech/releasekit/internal/container"
)

// newContainer opens the repository of the working directory.
func newContainer() (*container.Container, error) {
	return container.New(cfg, ".")
}
