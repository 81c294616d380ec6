package cmd

import (
	_ "bootkeeper/cmd/health"
	_ "bootkeeper/cmd/proxy"
	_ "bootkeeper/cmd/root"
	_ "bootkeeper/cmd/server"
	_ "bootkeeper/cmd/workflow"
)
