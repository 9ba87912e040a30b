package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ CredentialVault = (*MemoryVault)(nil)
	_ IdentityCache   = (*MemoryIdentityCache)(nil)
	_ RenewalLocker   = (*MemoryRenewalLocker)(nil)
	_ ConfigProvider  = (*CfgxConfigProvider)(nil)
	_ OptionsResolver = GoOptionsResolver{}
	_ MetricsRecorder = NopMetricsRecorder{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
