// Copyright (c) 2024 The DataspaceConnector Authors
// SPDX-License-Identifier: BSD-2-Clause

/*
Package dataspaceconnector implements a data space connector: a service
that offers data under usage contracts and retrieves data offered by other
connectors.

# Overview

Connectors talk to each other with multipart protocol messages. Each message
carries a JSON-LD header and an optional payload. A consumer fetches a
provider's self-description, proposes a rule document, receives a contract
agreement, acknowledges it and then requests artifacts under that agreement.
The provider enforces the agreement's rules on every artifact request.

# Package Structure

	github.com/sebplorenz/DataspaceConnector/pkg/message        - Headers, descriptions and the header builder
	github.com/sebplorenz/DataspaceConnector/pkg/mime           - Multipart envelope encoding and parsing
	github.com/sebplorenz/DataspaceConnector/pkg/transport      - HTTPS transport with per-host circuit breakers
	github.com/sebplorenz/DataspaceConnector/pkg/msh            - Exchange engine and inbound dispatcher
	github.com/sebplorenz/DataspaceConnector/internal/handler   - Description, contract and artifact handlers
	github.com/sebplorenz/DataspaceConnector/internal/usagecontrol - Rule parsing, contract validation, PEP and obligations
	github.com/sebplorenz/DataspaceConnector/internal/clearinghouse - Access and agreement logging
	github.com/sebplorenz/DataspaceConnector/internal/consumer  - Outbound consumer flows
	github.com/sebplorenz/DataspaceConnector/internal/storage   - Agreement, artifact and catalog persistence
	github.com/sebplorenz/DataspaceConnector/internal/server    - HTTP endpoint, admin API, health and metrics

# Quick Start

To fetch an artifact from a provider:

	engine, _ := msh.NewEngine(msh.EngineConfig{Sender: transport.NewHTTPSClient(nil)})
	client, _ := consumer.New(consumer.Config{
	    Exchanger:  engine,
	    Agreements: memory.NewStore(),
	})

	ctx = message.WithIdentity(ctx, message.Identity{ConnectorID: "https://consumer.example.org"})
	agreement, err := client.NegotiateContract(ctx, providerURL, ruleDocument)
	data, err := client.RequestArtifact(ctx, providerURL, artifactID, agreement.ID, nil)

To run a provider, see cmd/connector and the configuration reference in
internal/config.

# Usage Control

Agreements carry permissions, prohibitions and duties. Supported patterns:

  - Allow or prohibit access
  - Restrict usage to one connector
  - Usage during an interval
  - Limited number of uses
  - Log access to a clearing house
  - Notify a party on access

A rule with a constraint or duty outside these patterns denies access.

# License

BSD-2-Clause License
*/
package dataspaceconnector
