package stormconf

// Storm configuration keys the launcher reads or writes.
const (
	TopologyDebug              = "topology.debug"
	TopologyWorkers            = "topology.workers"
	TopologyMaxTaskParallelism = "topology.max.task.parallelism"

	NimbusSeeds      = "nimbus.seeds"
	NimbusHost       = "nimbus.host"
	NimbusThriftPort = "nimbus.thrift.port"
)

// Keys written by the packager or specific to this launcher.
const (
	PetrelUser = "petrel.user"
	PetrelHost = "petrel.host"

	// PetrelSubmitter selects the remote submitter: "nimbus" or "gateway".
	PetrelSubmitter = "petrel.submitter"

	PetrelGatewayURL       = "petrel.gateway.url"
	PetrelGatewayNamespace = "petrel.gateway.namespace"
)

// LocalOverrides returns the settings forced onto every in-process run to
// keep it from overloading the local machine.
func LocalOverrides() *Map {
	m := NewMap()
	m.Set(TopologyDebug, true)
	m.Set(TopologyWorkers, 1)
	m.Set(TopologyMaxTaskParallelism, 1)
	return m
}
