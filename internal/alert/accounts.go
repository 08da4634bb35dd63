package alert

// DefaultTeamAccounts lists the operator-owned addresses. Alerts for
// transactions sent by these accounts carry a team header; thresholds
// are identical for team and non-team senders.
var DefaultTeamAccounts = []string{
	"0xc267f8082C435945caD8CbA230bdDeB949C0a487",
	"0xDE1dDAd329A8713C3518c5DEa93EFf410F4bbE3c",
	"0xBAF863dE292cF72F6fD8a07Fdbb78c24157C6922",
	"0xf024F55cA6E0a30a5339508F3343d3e90f682a72",
	"0xaC4f0fe2bf800aA3005245F095A317541D745567",
	"0x691C7034331460cd275f81B0251238712d2c7819",
	"0x73811a9405cF6CC81F41c4715F36CDba957B5F0b",
	"0x8a208235FB7F2e16D12C9A4A96f6983934589727",
	"0xA89E9C7cb8B0d6b751321A08aAC214Ba24cb794c",
	"0xCa7D3124e5Cd9f393A66DFfbE6e8fBA784eAbc73",
	"0x557B09a8E79727d77164E292C393dD354926242c",
	"0xb041c23F702eBd65F359E62e8179fC6150ed6E34",
	"0xA458bF88b7e5db1f447eD768488bCBE7d42b44E7",
	"0xcd7a48e9b5a14cddc564f93dc5c4bdac3e4e9931",
	"0xdDd3B48CB0bD6ACc15571eCEB1915CE7514f4247",
	"0xc637751336f7c6946bf717b17e78bb3965170bb4",
	"0xcadfe278d7b5e65e5211cd5da181e3973e40ebe0",
	"0x3D73ed744c92f900C7A723B50aFc83c8FF53E7c0",
}
