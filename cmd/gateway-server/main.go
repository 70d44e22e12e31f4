// Copyright 2021 Alvalor S.A.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/hashicorp/go-multierror"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/pflag"

	"github.com/proofport/gateway/api/a2a"
	"github.com/proofport/gateway/api/chat"
	"github.com/proofport/gateway/api/mcp"
	"github.com/proofport/gateway/api/rest"
	"github.com/proofport/gateway/config"
	"github.com/proofport/gateway/discovery"
	"github.com/proofport/gateway/flow"
	"github.com/proofport/gateway/kv"
	"github.com/proofport/gateway/logging"
	"github.com/proofport/gateway/paymentgate"
	"github.com/proofport/gateway/prover"
	"github.com/proofport/gateway/service/eventbus"
	"github.com/proofport/gateway/service/payment"
	"github.com/proofport/gateway/service/sessionstore"
	"github.com/proofport/gateway/service/taskstore"
	"github.com/proofport/gateway/skill"
	"github.com/proofport/gateway/verifier"
	"github.com/proofport/gateway/worker"
)

const (
	success = 0
	failure = 1
)

func main() {
	os.Exit(run())
}

func run() int {

	// Signal catching for clean shutdown.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	// Command line parameter initialization. The port, level, base-url and
	// sign-page-url flags are copied into the Config and are then
	// overridable by the matching environment variable (config.ApplyEnv);
	// the remaining flags have no environment override.
	var (
		flagPort           uint16
		flagLevel          string
		flagBadgerDir      string
		flagBaseURL        string
		flagSignPageURL    string
		flagChainID        string
		flagChainRPCURL    string
		flagAttestationAddr string
		flagCountryAddr    string
		flagProverBinary   string
		flagCircuitsDir    string
	)

	pflag.Uint16VarP(&flagPort, "port", "p", 8080, "port to serve the gateway on")
	pflag.StringVarP(&flagLevel, "level", "l", "info", "log output level")
	pflag.StringVar(&flagBadgerDir, "badger-dir", "gateway-data", "embedded kv store directory when no Redis URL is configured")
	pflag.StringVar(&flagBaseURL, "base-url", "http://localhost:8080", "public base URL this gateway is reachable at")
	pflag.StringVar(&flagSignPageURL, "sign-page-url", "http://localhost:8080/s", "base URL of the hosted signing page")
	pflag.StringVar(&flagChainID, "chain-id", "8453", "primary chain id verifier addresses are deployed on")
	pflag.StringVar(&flagChainRPCURL, "chain-rpc-url", "", "JSON-RPC endpoint for the primary chain")
	pflag.StringVar(&flagAttestationAddr, "attestation-verifier", "", "verifier contract address for coinbase_attestation")
	pflag.StringVar(&flagCountryAddr, "country-verifier", "", "verifier contract address for coinbase_country_attestation")
	pflag.StringVar(&flagProverBinary, "prover-binary", "bb", "path to the local proving binary")
	pflag.StringVar(&flagCircuitsDir, "circuits-dir", "circuits", "directory containing compiled circuit artifacts")

	pflag.Parse()

	cfg := config.Default()
	cfg.Port = int(flagPort)
	cfg.LogLevel = flagLevel
	cfg.A2ABaseURL = flagBaseURL
	cfg.SignPageURL = flagSignPageURL
	cfg.ApplyEnv()

	log := logging.New(cfg.LogLevel)

	store, err := openStore(cfg, flagBadgerDir)
	if err != nil {
		log.Error().Err(err).Msg("could not open kv store")
		return failure
	}
	defer store.Close()

	registry := verifier.NewRegistry(map[string]map[string]string{
		"coinbase_attestation":         {flagChainID: flagAttestationAddr},
		"coinbase_country_attestation": {flagChainID: flagCountryAddr},
	})

	var chain *verifier.Chain
	if flagChainRPCURL != "" {
		chain, err = verifier.NewChain(registry, map[string]string{flagChainID: flagChainRPCURL}, 15*time.Second)
		if err != nil {
			log.Error().Err(err).Msg("could not initialize on-chain verifier")
			return failure
		}
	}

	var llm prover.LLMProvider
	switch {
	case cfg.AnthropicAPIKey != "":
		llm = prover.NewAnthropicProvider(cfg.AnthropicAPIKey)
	case cfg.OpenAIAPIKey != "":
		llm = prover.NewOpenAIProvider("openai", cfg.OpenAIAPIKey)
	case cfg.GeminiAPIKey != "":
		llm = prover.NewOpenAIProvider("gemini", cfg.GeminiAPIKey)
	}

	localProver := prover.NewLocalProver(flagProverBinary, flagCircuitsDir)

	var tee prover.TeeProvider
	if cfg.TeeMode == config.TeeNitro {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		nitro, err := prover.NewNitroTeeProvider(ctx, fmt.Sprintf("127.0.0.1:%d", cfg.EnclavePort))
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("could not connect to nitro enclave proxy, falling back to local prover")
		} else {
			tee = nitro
		}
	}

	proofCache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e6,
		MaxCost:     1 << 27,
		BufferItems: 64,
	})
	if err != nil {
		log.Error().Err(err).Msg("could not initialize proof cache")
		return failure
	}

	deps := skill.Deps{
		KV:             store,
		Sessions:       sessionstore.New(store, time.Duration(cfg.SigningTTLSeconds)*time.Second),
		BaseURL:        cfg.A2ABaseURL,
		SigningTTL:     time.Duration(cfg.SigningTTLSeconds) * time.Second,
		PaymentMode:    cfg.PaymentMode,
		ProofPrice:     cfg.PaymentProofPrice,
		PaymentNetwork: flagChainID,
		Registry:       registry,
		Chain:          chain,
		Prover:         localProver,
		TeeProvider:    tee,
		TeeMode:        cfg.TeeMode,
		ProofCache:     proofCache,
		RateLimit:      skill.NewRateLimiter(1, 5),
	}

	bus := eventbus.New()
	tasks := taskstore.New(store, bus)
	flows := flow.New(store, deps, log)

	facilitator := payment.NewFacilitator(cfg.PaymentFacilitatorURL, 15*time.Second)
	records := payment.NewStore(store)
	gate := paymentgate.New(cfg.PaymentMode, cfg.PaymentPayTo, flagChainID, "USDC", "proof-serving gateway", "1", cfg.PaymentProofPrice, facilitator, records, log)
	settlementWorker := payment.NewSettlementWorker(records, facilitator, log)

	var rep worker.ReputationSink
	if cfg.ERC8004ReputationAddress != "" && cfg.ProverPrivateKey != "" && flagChainRPCURL != "" {
		chainIDInt, _ := parseChainID(flagChainID)
		registryClient, err := discovery.NewReputationRegistry(flagChainRPCURL, chainIDInt, cfg.ERC8004ReputationAddress, cfg.ProverPrivateKey, log)
		if err != nil {
			log.Warn().Err(err).Msg("could not initialize reputation registry, reputation updates disabled")
		} else {
			rep = registryClient
		}
	}
	taskWorker := worker.New(tasks, deps, rep, log)

	docs := discovery.NewDocuments(cfg.A2ABaseURL, "1.0.0")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger = logging.Echo(log)
	e.Use(middleware.Logger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: corsOrigins(cfg.CORSOrigins)}))

	discovery.RegisterRoutes(e, docs)
	a2a.NewServer(tasks, bus, llm, deps.Sessions, gate, log).RegisterRoutes(e)
	mcp.NewServer(deps, gate).RegisterRoutes(e)
	rest.NewController(deps, flows, gate).RegisterRoutes(e)
	chat.NewServer(deps, llm, gate).RegisterRoutes(e)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	go taskWorker.Run(bgCtx)
	go settlementWorker.Run(bgCtx)

	done := make(chan struct{})
	failed := make(chan struct{})
	go func() {
		log.Info().Int("port", cfg.Port).Msg("proof-serving gateway starting")
		err := e.Start(fmt.Sprintf(":%d", cfg.Port))
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("gateway server encountered an error")
			close(failed)
			return
		}
		close(done)
	}()

	select {
	case <-sig:
		log.Info().Msg("proof-serving gateway stopping")
	case <-done:
		log.Info().Msg("proof-serving gateway done")
	case <-failed:
		bgCancel()
		return failure
	}
	go func() {
		<-sig
		log.Warn().Msg("forcing exit")
		os.Exit(1)
	}()

	bgCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var shutdownErr *multierror.Error
	if err := e.Shutdown(ctx); err != nil {
		shutdownErr = multierror.Append(shutdownErr, err)
	}
	if shutdownErr.ErrorOrNil() != nil {
		log.Error().Err(shutdownErr).Msg("could not shut down cleanly")
		return failure
	}

	return success
}

func openStore(cfg config.Config, badgerDir string) (kv.Store, error) {
	if cfg.RedisURL != "" {
		return kv.NewRedis(cfg.RedisURL)
	}
	return kv.NewBadger(badgerDir)
}

func corsOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func parseChainID(s string) (int64, error) {
	var n int64
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}
