package bucket

const defaultRootDir = "./data/buckets"
