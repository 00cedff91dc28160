package none

import (
	"context"
	"errors"

	registryanswer "github.com/chirino/ufdr-service/internal/registry/answer"
)

func init() {
	registryanswer.Register(registryanswer.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (registryanswer.Model, error) {
			return disabledModel{}, nil
		},
	})
}

// disabledModel lets the service run retrieval without a configured provider.
// Every answer becomes an error marker.
type disabledModel struct{}

func (disabledModel) Name() string { return "none" }

func (disabledModel) Complete(context.Context, string) (string, error) {
	return "", errors.New("no answering model is configured")
}
