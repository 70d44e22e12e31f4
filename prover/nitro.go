package prover

import (
	"context"
	"encoding/hex"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/proofport/gateway/models/gateway"
)

// NitroTeeProvider dials a Nitro enclave over its vsock proxy and
// speaks gRPC against it, the same transport the teacher already
// depends on for its own api/dps GRPC server, redirected here to the
// enclave boundary instead of the ledger index. Go's net package has
// no AF_VSOCK support, so enclaveCID/enclavePort address the host-side
// vsock-to-TCP proxy the Nitro runtime exposes, not a raw vsock socket.
type NitroTeeProvider struct {
	conn *grpc.ClientConn
}

// NewNitroTeeProvider dials the enclave's vsock proxy at
// host:enclavePort (enclaveCid/enclavePort, spec.md section 6).
func NewNitroTeeProvider(ctx context.Context, proxyAddr string) (*NitroTeeProvider, error) {
	conn, err := grpc.DialContext(ctx, proxyAddr, grpc.WithInsecure(), grpc.WithBlock())
	if err != nil {
		return nil, gateway.Wrap(gateway.KindUpstreamFailure, "could not dial enclave proxy", err)
	}
	return &NitroTeeProvider{conn: conn}, nil
}

// Prove invokes the enclave's Prove RPC. The request/response wire
// shape is a generic protobuf Struct (google.golang.org/protobuf) so
// this boundary needs no protoc-generated stub: the enclave image
// decodes the same field names this gateway encodes.
func (p *NitroTeeProvider) Prove(ctx context.Context, params Params) (Proof, error) {
	req, err := structpb.NewStruct(map[string]any{
		"circuitId":   params.CircuitID,
		"address":     params.Address,
		"signature":   params.Signature,
		"scope":       params.Scope,
		"countryList": toAnySlice(params.CountryList),
		"isIncluded":  params.IsIncluded,
	})
	if err != nil {
		return Proof{}, gateway.Wrap(gateway.KindInternal, "could not encode TEE prove request", err)
	}

	resp := &structpb.Struct{}
	if err := p.conn.Invoke(ctx, "/tee.Enclave/Prove", req, resp); err != nil {
		if ctx.Err() != nil {
			return Proof{}, gateway.Wrap(gateway.KindUpstreamTimeout, "TEE prove call timed out", err)
		}
		return Proof{}, gateway.Wrap(gateway.KindUpstreamFailure, "TEE prove call failed", err)
	}

	fields := resp.GetFields()
	proofHex := fields["proof"].GetStringValue()
	publicInputsHex := fields["publicInputs"].GetStringValue()
	proofBytes, err := hex.DecodeString(proofHex)
	if err != nil {
		return Proof{}, gateway.Wrap(gateway.KindUpstreamFailure, "could not decode TEE proof bytes", err)
	}
	publicInputBytes, err := hex.DecodeString(publicInputsHex)
	if err != nil {
		return Proof{}, gateway.Wrap(gateway.KindUpstreamFailure, "could not decode TEE public input bytes", err)
	}

	return Proof{
		Proof:        proofBytes,
		PublicInputs: publicInputBytes,
		Nullifier:    fields["nullifier"].GetStringValue(),
		SignalHash:   fields["signalHash"].GetStringValue(),
	}, nil
}

// Attest asks the enclave for an attestation document over digest.
func (p *NitroTeeProvider) Attest(ctx context.Context, digest [32]byte) ([]byte, error) {
	req, err := structpb.NewStruct(map[string]any{
		"digest": hex.EncodeToString(digest[:]),
	})
	if err != nil {
		return nil, gateway.Wrap(gateway.KindInternal, "could not encode attest request", err)
	}
	resp := &structpb.Struct{}
	if err := p.conn.Invoke(ctx, "/tee.Enclave/Attest", req, resp); err != nil {
		return nil, gateway.Wrap(gateway.KindUpstreamFailure, "TEE attest call failed", err)
	}
	doc := resp.GetFields()["document"].GetStringValue()
	raw, err := hex.DecodeString(doc)
	if err != nil {
		return nil, gateway.Wrap(gateway.KindUpstreamFailure, "could not decode attestation document", err)
	}
	return raw, nil
}

// Close releases the underlying gRPC connection.
func (p *NitroTeeProvider) Close() error {
	return p.conn.Close()
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
