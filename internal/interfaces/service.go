package interfaces

// Service is implemented by every interface exposed by the daemon, whether
// HTTP, gRPC or whatever.
type Service interface {
	Start() error
	Stop()
}
