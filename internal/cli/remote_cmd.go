package cli

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/subcommands"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	grpcadapter "github.com/simaogato/dipledger-backend/internal/adapter/grpc"
)

type remoteCmd struct {
	body    string
	timeout time.Duration
}

func (*remoteCmd) Name() string     { return "remote" }
func (*remoteCmd) Synopsis() string { return "call a LedgerService method on a running server" }
func (*remoteCmd) Usage() string {
	return `dipledger remote [-d '<json>'] <Method>

  Sends the JSON body as a google.protobuf.Struct to the configured server
  and prints the response. Example:

    dipledger remote -d '{"user_id": "..."}' GetValuation
`
}

func (c *remoteCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.body, "d", "{}", "Request body as a JSON object.")
	f.DurationVar(&c.timeout, "timeout", 15*time.Second, "Call deadline.")
}

func (c *remoteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(stderr, "exactly one method name is required")
		return subcommands.ExitUsageError
	}

	req := &structpb.Struct{}
	if err := protojson.Unmarshal([]byte(c.body), req); err != nil {
		fmt.Fprintf(stderr, "Error parsing -d: %v\n", err)
		return subcommands.ExitUsageError
	}

	cfg, _, err := loadConfig()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}

	conn, err := grpc.NewClient(cfg.Server.Address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+cfg.Server.APIToken)

	resp, err := grpcadapter.NewLedgerServiceClient(conn).Call(ctx, f.Arg(0), req)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}

	out, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(resp)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Fprintln(stdout, string(out))
	return subcommands.ExitSuccess
}
