package vectorstore

import (
	"fmt"
	"net"
	"strconv"

	"github.com/Anansitrading/kijko/internal/config"
	"github.com/Anansitrading/kijko/internal/logging"
)

// New creates the configured Store backend.
func New(cfg config.VectorStoreConfig, embedder Embedder, logger *logging.Logger) (Store, error) {
	switch cfg.Provider {
	case "chromem", "":
		return NewChromemStore(ChromemConfig{Path: cfg.Path}, embedder, logger)
	case "qdrant":
		host, port, err := splitAddr(cfg.Addr)
		if err != nil {
			return nil, err
		}
		return NewQdrantStore(QdrantConfig{Host: host, Port: port}, embedder, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// splitAddr parses "host:port", defaulting to the Qdrant gRPC port.
func splitAddr(addr string) (string, int, error) {
	if addr == "" {
		return "localhost", 6334, nil
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 6334, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("%w: bad port in %q", ErrInvalidConfig, addr)
	}
	return host, port, nil
}
