package insert

const defaultInlineMetadataThreshold = 512
