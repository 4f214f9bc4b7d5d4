package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Retriable calls f up to nbTries times, until it succeeds or returns a fatal error (see MakeFatal)
// Between two tries, it waits backoff, 2*backoff, 4*backoff...
func Retriable(ctx context.Context, f func() error, backoff time.Duration, nbTries int) error {
	var err error
	for i := 0; i < nbTries; i++ {
		if i > 0 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return MergeErrors(true, err, ctx.Err())
			}
		}
		if err = f(); err == nil || Fatal(err) {
			return err
		}
	}
	return err
}

// ToJSON marshals v with an indentation of 2 spaces
func ToJSON(v interface{}) ([]byte, error) {
	vb, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("toJSON.Marshal: %w", err)
	}
	return vb, nil
}
