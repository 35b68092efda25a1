// Copyright (c) 2024 The DataspaceConnector Authors
// SPDX-License-Identifier: BSD-2-Clause

/*
Package transport implements the HTTPS transport layer for connector messages.

# TLS Configuration

The package recommends TLS 1.3 with fallback to TLS 1.2:

	config := transport.DefaultHTTPSConfig()
	// MinTLSVersion: TLS 1.2
	// MaxTLSVersion: TLS 1.3

# Client Usage

	client := transport.NewHTTPSClient(transport.DefaultHTTPSConfig())
	resp, err := client.Send(ctx, "https://provider.example.com/api/ids/data", body, contentType)

# Failure Classes

Send never retries. Every error it returns wraps one of:

	ErrTimeout      the peer accepted the connection but did not answer in time
	ErrUnreachable  no connection could be made, or the host's breaker is open
	ErrTransport    anything else, including non-2xx status codes

# Circuit Breaking

Each peer host gets its own circuit breaker. After BreakerMaxFailures
consecutive timeouts or connection failures the breaker opens and calls fail
immediately with ErrUnreachable for BreakerOpenTimeout. Status code errors
do not count against the peer.
*/
package transport
