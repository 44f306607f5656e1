// Package harness replays bot sessions as executable scenarios.
//
// A scenario seeds an in-memory store, runs a sequence of steps through the
// real engine and dispatcher, and asserts on the Notify records they
// render. Time is frozen and registration tokens are predetermined, so a
// scenario's output is reproducible and can be pinned by a golden file.
//
// # Scenario Format
//
// Scenarios are YAML files. Records and queries use their JSON wire shape:
//
//	name: subscribe_then_broadcast
//	description: "A subscriber hears about a new proposal"
//	epoch: 1700000000
//	fixtures:
//	  entries:
//	    - timestamp: 1700000000
//	      origin: osmosis_proposals
//	      imperative: notify
//	      custom_data:
//	        kind: proposal_data
//	        data: { blockchain: osmosis, proposal_id: 812, title: "Upgrade", status: voting_period }
//	steps:
//	  - name: subscribe
//	    query:
//	      query_part: { kind: entries, message: /gov_proposals, indices: [timeline] }
//	      settings: { subscribe: true, user_hash: 42 }
//	  - insert:
//	      - { timestamp: 1700000100, origin: osmosis_proposals, imperative: notify, custom_data: { ... } }
//	  - refresh: true
//	  - advance: 1h
//	assertions:
//	  - type: subscribers
//	    step: subscribe
//	    users: [42]
//	  - type: notify_contains
//	    user: 42
//	    text: "osmosis #813"
//
// # Assertion Types
//
//   - notify_count: number of notifies rendered, optionally for one user
//   - notify_contains: some notify message line contains a fragment
//   - result_count: number of records a query step resolved to
//   - query_error: a query step was rejected with a given code
//   - subscribers: the exact subscriber set of a query step's subscription
//   - pending_notifies: number of Notify records left in the store
//
// # Fixtures
//
// The fixtures block has the same shape as the files read by LoadFixtures,
// which the seed command writes to a live store or socket.
package harness
