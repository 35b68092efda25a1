// Copyright (c) 2024 The DataspaceConnector Authors
// SPDX-License-Identifier: BSD-2-Clause

/*
Package msh implements the message service handler of a connector.

The MSH is the core processing component that sends outbound protocol
messages and routes inbound ones to their handlers.

# Outbound Messages

The Engine drives one synchronous exchange per call:

	engine, err := msh.NewEngine(msh.EngineConfig{
		Builder:   message.NewBuilder(),
		Sender:    transport.NewHTTPSClient(nil),
		Validator: validator,
	})
	resp, err := engine.Send(ctx, &message.DescriptionRequest{Recipient: peer}, nil)

Send builds the header from the identity in ctx, serializes the multipart
envelope, transmits it and validates the token on the reply. Auditable
message types are logged through the configured Auditor before and after
transmission. Every failure is returned as one of the package sentinels;
a failed exchange never yields an empty response.

# Incoming Messages

The Dispatcher checks an inbound message and hands it to the handler
registered for its type:

	d := msh.NewDispatcher(msh.DispatcherConfig{InboundVersions: []string{"^4.0"}})
	d.Register(message.TypeArtifactRequest, artifactHandler)
	reply := d.Dispatch(ctx, parsed)

Checks run in a fixed order: missing header, model version, security token,
replayed message id (when a ReplayGuard is configured) and finally handler
lookup. Each failed check produces a rejection that references the inbound
message id.
*/
package msh
