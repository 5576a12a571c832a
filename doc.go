// Package realtime provides a production-ready publish/acknowledge engine
// and security propagation layer for session-oriented realtime systems.
//
// Works both as a library for embedding behind your own transport AND as a
// standalone microservice with REST API.
//
// # Features
//
//   - Session-targeted publication fan-out with bounded concurrency
//   - Four consistency levels: Transactional, Queued, Deferred, Acknowledged
//   - Acknowledged publications wait for per-recipient confirmation with a
//     configurable timeout (default 60s)
//   - Exactly-once completion: late or duplicate acknowledgements are no-ops
//   - Duplicate channel suppression and cluster-aware recipient skipping
//   - Security directory propagation: token revocation/restoration,
//     permission set recomputation, forced disconnects
//   - Serialized change application via a single-worker DataChangeQueue,
//     with cluster replication for locally originated events
//   - Session activity log with TTL-bounded retention
//   - Options Pattern for modern Go API design (2025 best practices)
//   - Pluggable architecture: bring your own MessageTransport, Logger,
//     SessionDirectory, NotificationService
//   - Multi-Database Support: MySQL, PostgreSQL, SQLite via Relica adapters
//   - Bounded in-memory caches via hashicorp/golang-lru
//   - Embedded Migrations for easy database setup
//
// # Quick Start
//
// # Option 1: As Embedded Library
//
//	import (
//	    realtime "github.com/coregx/realtime"
//	    "github.com/coregx/realtime/adapters/memory"
//	    "github.com/coregx/realtime/model"
//	)
//
//	sessions := memory.NewSessionDirectory()
//	transport := memory.NewLoopbackTransport()
//
//	publisher, _ := realtime.NewPublisherService(
//	    realtime.WithPublisherTransport(transport),
//	    realtime.WithPublisherLogger(logger),
//	)
//
// Publish a data event to its recipients:
//
//	receipt, err := publisher.ProcessPublish(ctx, &model.Message{
//	    Request: model.Request{
//	        Path:    "/chat/room/1",
//	        Action:  "set",
//	        EventID: 1,
//	        Data:    map[string]any{"text": "hello"},
//	    },
//	    Session:    sender,
//	    Recipients: recipients,
//	})
//
// Confirm receipt from a recipient (Acknowledged consistency):
//
//	publisher.ProcessAcknowledge(ctx, &model.Message{
//	    Request: model.Request{Data: receipt.Publication.ID, SessionID: recipient.ID},
//	})
//
// Propagate a security directory change:
//
//	queue, _ := realtime.NewDataChangeQueue(
//	    realtime.WithQueueResetter(resetter),
//	    realtime.WithQueueLogger(logger),
//	)
//	go queue.Run(ctx)
//
//	affected, err := queue.DataChanged(ctx, model.SecurityChange{
//	    Kind:      model.ChangeUnlinkGroup,
//	    GroupName: "operators",
//	})
//
// # Option 2: As Standalone Service
//
// Run the standalone realtime server:
//
//	go run ./cmd/realtime-server serve
//
// Access REST API at http://localhost:8080:
//
//	# Connect a session
//	curl -X POST http://localhost:8080/api/v1/sessions \
//	  -H "Content-Type: application/json" \
//	  -d '{"username":"alice","groups":["operators"]}'
//
//	# Publish an event
//	curl -X POST http://localhost:8080/api/v1/publish \
//	  -H "Content-Type: application/json" \
//	  -d '{"sessionId":"...","path":"/chat/room/1","eventId":1,"data":{"text":"hi"},"recipients":[{"sessionId":"..."}]}'
//
//	# Health check
//	curl http://localhost:8080/api/v1/health
//
// # Consistency Levels
//
// Every publish request selects a completion policy:
//
//	0 Transactional - ProcessPublish blocks until fan-out has completed
//	1 Queued        - fire-and-forget, results driven in the background
//	2 Deferred      - default; like Queued, results relayed to the publisher
//	3 Acknowledged  - completion waits until every recipient acknowledges,
//	                  or the acknowledge timeout elapses
//
// Acknowledged publications always carry a result snapshot on the response
// meta. A timeout finalizes with an "unacknowledged publication" error plus
// the partial result, so callers can tell fully-failed from
// partially-confirmed.
//
// # Security Propagation
//
// Security directory changes (token revoked/restored, permission changes,
// group and user upserts/deletes) flow through the DataChangeQueue one at a
// time. The SessionPermissionResetter maps each change onto the live
// session population: disconnecting sessions whose access is gone outright,
// recomputing permission set keys where group membership changed, and
// maintaining the revoked-token cache. The affected-session list feeds
// downstream subscription invalidation.
//
// # Database Schema
//
// Persistence is optional. When enabled, three tables are created via
// embedded per-driver migrations (migrations/mysql, migrations/postgres,
// migrations/sqlite3):
//
//	realtime_cache            - persisted key-value cache rows
//	realtime_revocation       - revoked tokens surviving restarts
//	realtime_session_activity - most recent action per session
//
// Supports MySQL, PostgreSQL, and SQLite via Relica adapters.
// Table prefix can be customized (default: "realtime_").
//
// # Examples
//
// See the examples/ directory for complete working examples.
//
// For detailed documentation, see pkg.go.dev.
package realtime
