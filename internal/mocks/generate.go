// Package mocks provides mock implementations of the dispatch ports.
//
// Mocks are generated with go.uber.org/mock (gomock). To regenerate after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	store := mocks.NewMockStateStore(ctrl)
//	store.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=state_store_mock.go github.com/target/mailrelay/internal/core StateStore

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=transport_mock.go github.com/target/mailrelay/internal/core Transport,TransportSession

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=cache_repository_mock.go github.com/target/mailrelay/internal/core CacheRepository
