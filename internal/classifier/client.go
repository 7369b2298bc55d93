// Package classifier talks to the model sidecar that scores feature vectors.
// Messages are google.protobuf.Struct values so the service needs no
// generated stubs on either side.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	describeMethod = "/kdd.v1.Classifier/Describe"
	predictMethod  = "/kdd.v1.Classifier/Predict"
)

// ErrModelUnavailable disables prediction. Conversion is unaffected.
var ErrModelUnavailable = errors.New("classifier model unavailable")

// Client implements model.Classifier over gRPC.
type Client struct {
	conn     *grpc.ClientConn
	timeout  time.Duration
	columns  []string
	encoders map[string][]string
}

// Dial connects to addr and fetches the model's schema. Any failure is
// reported as ErrModelUnavailable.
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("%w: no classifier address configured", ErrModelUnavailable)
	}
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	c := &Client{conn: conn, timeout: 30 * time.Second}
	if err := c.describe(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	zap.S().Infof("Classifier at %s expects %d columns, %d encoded", addr, len(c.columns), len(c.encoders))
	return c, nil
}

// Columns returns the feature order the model was trained on.
func (c *Client) Columns() []string { return c.columns }

// Encoders returns the class list of every categorical column.
func (c *Client) Encoders() map[string][]string { return c.encoders }

// Predict returns one class label per row.
func (c *Client) Predict(ctx context.Context, rows [][]float64) ([]int, error) {
	resp, err := c.predict(ctx, rows, false)
	if err != nil {
		return nil, err
	}
	return DecodeLabels(resp)
}

// PredictProba returns the class probabilities of every row.
func (c *Client) PredictProba(ctx context.Context, rows [][]float64) ([][]float64, error) {
	resp, err := c.predict(ctx, rows, true)
	if err != nil {
		return nil, err
	}
	return DecodeProbabilities(resp)
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) describe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, describeMethod, &structpb.Struct{}, resp); err != nil {
		return fmt.Errorf("describe: %w", err)
	}
	columns, encoders, err := DecodeSchema(resp)
	if err != nil {
		return err
	}
	c.columns, c.encoders = columns, encoders
	return nil
}

func (c *Client) predict(ctx context.Context, rows [][]float64, proba bool) (*structpb.Struct, error) {
	req, err := EncodeRequest(rows, proba)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, predictMethod, req, resp); err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	return resp, nil
}
