// Copyright (c) 2024 The DataspaceConnector Authors
// SPDX-License-Identifier: BSD-2-Clause

/*
Package message provides protocol message headers and their builders.

Every message exchanged between connectors consists of a structured header
and an opaque payload. This package covers the header: the message kinds,
the rejection vocabulary and the construction of headers from per-kind
descriptions.

# Message Types

Requests and their replies:
  - DescriptionRequest / DescriptionResponse: catalog lookups
  - ContractRequest / ContractAgreement / ContractRejection: negotiation
  - ArtifactRequest / ArtifactResponse: data transfer

Signals:
  - MessageProcessed: acknowledgement without data
  - Rejection: refusal with a RejectionReason and the refused message id
  - Log / Notification: clearing house and reporting traffic

# Building Headers

The connector identity travels in the context:

	ctx = message.WithIdentity(ctx, message.Identity{
	    ConnectorID:  "https://connector.example.com",
	    ModelVersion: "4.2.7",
	    Token:        dat,
	})

	b := message.NewBuilder()
	h, err := b.Build(ctx, &message.ArtifactRequest{
	    Recipient:         "https://provider.example.com/api/ids/data",
	    RequestedArtifact: "https://provider.example.com/api/artifacts/42",
	    TransferContract:  "https://provider.example.com/api/agreements/7",
	})

Build fails with ErrDescriptionInvalid when a required field is empty and
with ErrNoIdentity when the context carries no identity.

# Rejections

	rej := message.NewRejection(id, inbound, message.RejectionBadParameters)

The rejection's correlation message is always the id of the refused message.
*/
package message
