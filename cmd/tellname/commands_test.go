package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sugawani/tellname/greeting"
	"github.com/sugawani/tellname/models"
	"github.com/sugawani/tellname/query"
)

type fakeFinder map[models.ID]*models.User

func (f fakeFinder) Execute(_ context.Context, userID models.ID) (*models.User, error) {
	u, ok := f[userID]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", query.ErrUserNotFound, userID)
	}
	return u, nil
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeWith(t, rootCmd(), args...)
}

func executeWith(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func Test_Say(t *testing.T) {
	cases := map[string]struct {
		args []string
		want string
	}{
		"alex":       {args: []string{"say", "--id", "1", "Alex"}, want: "My name is Alex.\n"},
		"george":     {args: []string{"say", "--id", "2", "George"}, want: "My name is George.\n"},
		"empty name": {args: []string{"say", ""}, want: "My name is .\n"},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			actual, err := execute(t, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, actual)
		})
	}
}

func Test_Say_MissingName(t *testing.T) {
	_, err := execute(t, "say")
	assert.Error(t, err)
}

func Test_Version(t *testing.T) {
	actual, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "tellname version 0.1.0\n", actual)
}

func Test_ParseID(t *testing.T) {
	cases := map[string]struct {
		in        string
		want      models.ID
		assertErr assert.ErrorAssertionFunc
	}{
		"positive": {in: "42", want: 42, assertErr: assert.NoError},
		"zero":     {in: "0", want: 0, assertErr: assert.NoError},
		"text":     {in: "alex", want: 0, assertErr: assert.Error},
		"empty":    {in: "", want: 0, assertErr: assert.Error},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			actual, err := parseID(tt.in)
			tt.assertErr(t, err)
			assert.Equal(t, tt.want, actual)
		})
	}
}

func Test_Greet_InvalidID(t *testing.T) {
	_, err := execute(t, "greet", "not-a-number")
	assert.ErrorContains(t, err, "invalid user id")
}

func Test_Greet_MetricsTextfile(t *testing.T) {
	cases := map[string]struct {
		id         string
		want       string
		assertErr  assert.ErrorAssertionFunc
		wantMetric string
	}{
		"user exists": {
			id:         "1",
			want:       "My name is Alex.\n",
			assertErr:  assert.NoError,
			wantMetric: `tellname_greetings_total{result="ok"} 1`,
		},
		"user not exists": {
			id:   "9",
			want: "",
			assertErr: func(t assert.TestingT, err error, i ...interface{}) bool {
				return assert.ErrorIs(t, err, query.ErrUserNotFound)
			},
			wantMetric: `tellname_greetings_total{result="not_found"} 1`,
		},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			released := false
			opts := &options{
				openFinder: func(context.Context, *options) (greeting.Finder, func(), error) {
					return fakeFinder{1: models.NewUser(1, "Alex")}, func() { released = true }, nil
				},
			}
			path := filepath.Join(t.TempDir(), "tellname.prom")

			actual, err := executeWith(t, newRootCmd(opts), "greet", tt.id, "--metrics-textfile", path)
			tt.assertErr(t, err)
			if tt.want != "" {
				assert.Equal(t, tt.want, actual)
			}
			assert.True(t, released)

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Contains(t, string(data), "# TYPE tellname_greetings_total counter")
			assert.Contains(t, string(data), tt.wantMetric)
		})
	}
}

func Test_Greet_NoMetricsTextfile(t *testing.T) {
	opts := &options{
		openFinder: func(context.Context, *options) (greeting.Finder, func(), error) {
			return fakeFinder{1: models.NewUser(1, "Alex")}, func() {}, nil
		},
	}

	actual, err := executeWith(t, newRootCmd(opts), "greet", "1")
	require.NoError(t, err)
	assert.Equal(t, "My name is Alex.\n", actual)
}
