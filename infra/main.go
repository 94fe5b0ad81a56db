package main

import (
	"fmt"

	"github.com/pulumi/pulumi-gcp/sdk/v7/go/gcp/artifactregistry"
	"github.com/pulumi/pulumi-gcp/sdk/v7/go/gcp/compute"
	"github.com/pulumi/pulumi-gcp/sdk/v7/go/gcp/firestore"
	"github.com/pulumi/pulumi-gcp/sdk/v7/go/gcp/projects"
	"github.com/pulumi/pulumi-gcp/sdk/v7/go/gcp/serviceaccount"
	"github.com/pulumi/pulumi-gcp/sdk/v7/go/gcp/storage"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi/config"
)

func main() {
	pulumi.Run(func(ctx *pulumi.Context) error {
		cfg := config.New(ctx, "doggyday-infra")
		gcpCfg := config.New(ctx, "gcp")

		env := cfg.Require("environment")
		machineType := cfg.Get("machineType")
		if machineType == "" {
			machineType = "e2-micro"
		}
		domain := cfg.Get("domain")
		apiKey := cfg.RequireSecret("firebaseApiKey")
		webClientID := cfg.Get("webClientId")
		corsOrigins := cfg.Get("corsAllowedOrigins")

		project := gcpCfg.Require("project")
		region := gcpCfg.Get("region")
		if region == "" {
			region = "us-west1"
		}
		zone := gcpCfg.Get("zone")
		if zone == "" {
			zone = "us-west1-b"
		}

		namePrefix := fmt.Sprintf("doggyday-%s", env)

		// =================================================================
		// APIs
		// =================================================================
		apis := map[string]string{
			"compute":          "compute.googleapis.com",
			"artifactregistry": "artifactregistry.googleapis.com",
			"firestore":        "firestore.googleapis.com",
			"storage":          "storage.googleapis.com",
			"identitytoolkit":  "identitytoolkit.googleapis.com",
			"iam":              "iam.googleapis.com",
		}

		apiDeps := make([]pulumi.Resource, 0, len(apis))
		for name, api := range apis {
			svc, err := projects.NewService(ctx, fmt.Sprintf("%s-enable-%s-api", namePrefix, name), &projects.ServiceArgs{
				Service:                  pulumi.String(api),
				DisableDependentServices: pulumi.Bool(false),
				DisableOnDestroy:         pulumi.Bool(false),
			})
			if err != nil {
				return err
			}
			apiDeps = append(apiDeps, svc)
		}

		// =================================================================
		// Artifact Registry
		// =================================================================
		registryURL := pulumi.Sprintf("%s-docker.pkg.dev/%s/doggyday", region, project)
		image := pulumi.Sprintf("%s/doggyday:latest", registryURL)

		if _, err := artifactregistry.NewRepository(ctx, fmt.Sprintf("%s-registry", namePrefix), &artifactregistry.RepositoryArgs{
			RepositoryId: pulumi.String("doggyday"),
			Location:     pulumi.String(region),
			Format:       pulumi.String("DOCKER"),
			Description:  pulumi.String("Docker images for the doggyday app host"),
		}, pulumi.DependsOn(apiDeps)); err != nil {
			return err
		}

		// =================================================================
		// Firestore: users, dogs, appointments
		// =================================================================
		dbName := fmt.Sprintf("doggyday-%s", env)
		firestoreDB, err := firestore.NewDatabase(ctx, fmt.Sprintf("%s-firestore", namePrefix), &firestore.DatabaseArgs{
			Name:                     pulumi.String(dbName),
			LocationId:               pulumi.String(region),
			Type:                     pulumi.String("FIRESTORE_NATIVE"),
			ConcurrencyMode:          pulumi.String("OPTIMISTIC"),
			AppEngineIntegrationMode: pulumi.String("DISABLED"),
		}, pulumi.DependsOn(apiDeps))
		if err != nil {
			return err
		}

		// Composite indexes for the booking queries.
		indexes := []struct {
			name       string
			collection string
			fields     []string
		}{
			{"dogs-by-owner", "dogs", []string{"owner", "name"}},
			{"appointments-by-dog", "appointments", []string{"dogId", "date", "startTime"}},
		}
		for _, idx := range indexes {
			fields := firestore.IndexFieldArray{}
			for _, f := range idx.fields {
				fields = append(fields, &firestore.IndexFieldArgs{
					FieldPath: pulumi.String(f),
					Order:     pulumi.String("ASCENDING"),
				})
			}
			if _, err := firestore.NewIndex(ctx, fmt.Sprintf("%s-%s", namePrefix, idx.name), &firestore.IndexArgs{
				Database:   firestoreDB.Name,
				Collection: pulumi.String(idx.collection),
				Fields:     fields,
			}); err != nil {
				return err
			}
		}

		// =================================================================
		// Cloud Storage: dog photos, plus diag probes under tests/
		// =================================================================
		bucketName := fmt.Sprintf("%s-%s-photos", project, env)
		bucket, err := storage.NewBucket(ctx, fmt.Sprintf("%s-photos", namePrefix), &storage.BucketArgs{
			Name:                     pulumi.String(bucketName),
			Location:                 pulumi.String(region),
			UniformBucketLevelAccess: pulumi.Bool(true),
			ForceDestroy:             pulumi.Bool(env != "prod"),
			Cors: storage.BucketCorArray{
				&storage.BucketCorArgs{
					Origins:         pulumi.StringArray{pulumi.String("*")},
					Methods:         pulumi.StringArray{pulumi.String("GET")},
					MaxAgeSeconds:   pulumi.Int(3600),
					ResponseHeaders: pulumi.StringArray{pulumi.String("Content-Type")},
				},
			},
			LifecycleRules: storage.BucketLifecycleRuleArray{
				&storage.BucketLifecycleRuleArgs{
					Action: &storage.BucketLifecycleRuleActionArgs{
						Type: pulumi.String("Delete"),
					},
					Condition: &storage.BucketLifecycleRuleConditionArgs{
						Age:             pulumi.Int(1),
						MatchesPrefixes: pulumi.StringArray{pulumi.String("tests/")},
					},
				},
			},
		}, pulumi.DependsOn(apiDeps))
		if err != nil {
			return err
		}

		// =================================================================
		// Service Account
		// =================================================================
		saName := fmt.Sprintf("doggyday-%s-host", env)
		serviceAccount, err := serviceaccount.NewAccount(ctx, fmt.Sprintf("%s-sa", namePrefix), &serviceaccount.AccountArgs{
			AccountId:   pulumi.String(saName),
			DisplayName: pulumi.String(fmt.Sprintf("DoggyDay %s App Host", env)),
			Description: pulumi.String("Service account for the doggyday app host"),
		}, pulumi.DependsOn(apiDeps))
		if err != nil {
			return err
		}

		iamRoles := []struct {
			name string
			role string
		}{
			{"artifact-registry-reader", "roles/artifactregistry.reader"},
			{"firestore-user", "roles/datastore.user"},
			{"firebase-auth-viewer", "roles/firebaseauth.viewer"},
			{"logging-writer", "roles/logging.logWriter"},
		}

		iamBindings := make([]pulumi.Resource, 0, len(iamRoles)+1)
		for _, r := range iamRoles {
			binding, err := projects.NewIAMMember(ctx, fmt.Sprintf("%s-sa-%s", namePrefix, r.name), &projects.IAMMemberArgs{
				Project: pulumi.String(project),
				Role:    pulumi.String(r.role),
				Member:  pulumi.Sprintf("serviceAccount:%s", serviceAccount.Email),
			})
			if err != nil {
				return err
			}
			iamBindings = append(iamBindings, binding)
		}

		// Object access is scoped to the photo bucket.
		bucketBinding, err := storage.NewBucketIAMMember(ctx, fmt.Sprintf("%s-sa-photos-admin", namePrefix), &storage.BucketIAMMemberArgs{
			Bucket: bucket.Name,
			Role:   pulumi.String("roles/storage.objectAdmin"),
			Member: pulumi.Sprintf("serviceAccount:%s", serviceAccount.Email),
		})
		if err != nil {
			return err
		}
		iamBindings = append(iamBindings, bucketBinding)

		// =================================================================
		// Network
		// =================================================================
		network, err := compute.NewNetwork(ctx, fmt.Sprintf("%s-network", namePrefix), &compute.NetworkArgs{
			AutoCreateSubnetworks: pulumi.Bool(false),
			Description:           pulumi.String("VPC network for doggyday"),
		}, pulumi.DependsOn(apiDeps))
		if err != nil {
			return err
		}

		subnet, err := compute.NewSubnetwork(ctx, fmt.Sprintf("%s-subnet", namePrefix), &compute.SubnetworkArgs{
			IpCidrRange: pulumi.String("10.10.0.0/24"),
			Region:      pulumi.String(region),
			Network:     network.ID(),
		})
		if err != nil {
			return err
		}

		firewalls := []struct {
			name    string
			ports   []string
			sources []string
		}{
			{"allow-http", []string{"80", "443"}, []string{"0.0.0.0/0"}},
			// IAP range
			{"allow-iap-ssh", []string{"22"}, []string{"35.235.240.0/20"}},
		}
		for _, fw := range firewalls {
			if _, err := compute.NewFirewall(ctx, fmt.Sprintf("%s-%s", namePrefix, fw.name), &compute.FirewallArgs{
				Network: network.Name,
				Allows: compute.FirewallAllowArray{
					&compute.FirewallAllowArgs{
						Protocol: pulumi.String("tcp"),
						Ports:    pulumi.ToStringArray(fw.ports),
					},
				},
				SourceRanges: pulumi.ToStringArray(fw.sources),
				TargetTags:   pulumi.StringArray{pulumi.String("doggyday-host")},
			}); err != nil {
				return err
			}
		}

		staticIP, err := compute.NewAddress(ctx, fmt.Sprintf("%s-ip", namePrefix), &compute.AddressArgs{
			Region:      pulumi.String(region),
			AddressType: pulumi.String("EXTERNAL"),
		})
		if err != nil {
			return err
		}

		// =================================================================
		// Compute Engine instance
		// =================================================================
		// Container-Optimized OS; settings come from instance metadata.
		startupScript := pulumi.Sprintf(`#!/bin/bash
set -e
export HOME=/home/chronos

get_metadata() {
  curl -sf "http://metadata.google.internal/computeMetadata/v1/instance/attributes/$1" -H "Metadata-Flavor: Google"
}

IMAGE=$(get_metadata "doggyday-image")
DOMAIN=$(get_metadata "doggyday-domain")

docker-credential-gcr configure-docker --registries=%s-docker.pkg.dev
docker pull ${IMAGE}

docker stop doggyday caddy 2>/dev/null || true
docker rm doggyday caddy 2>/dev/null || true
docker network create doggyday-net 2>/dev/null || true

docker run -d \
  --name doggyday \
  --restart=always \
  --network doggyday-net \
  -v /home/chronos/doggyday:/state \
  -e DOGGYDAY_FIREBASE_PROJECT_ID=$(get_metadata "doggyday-project-id") \
  -e DOGGYDAY_FIREBASE_API_KEY=$(get_metadata "doggyday-api-key") \
  -e DOGGYDAY_FIREBASE_DATABASE=$(get_metadata "doggyday-database") \
  -e DOGGYDAY_FIREBASE_STORAGE_BUCKET=$(get_metadata "doggyday-bucket") \
  -e DOGGYDAY_OAUTH_PLATFORM=web \
  -e DOGGYDAY_OAUTH_WEB_CLIENT_ID=$(get_metadata "doggyday-web-client-id") \
  -e DOGGYDAY_API_ADDR=:8080 \
  -e DOGGYDAY_API_DEVICE=off \
  -e DOGGYDAY_API_CORS_ALLOWED_ORIGINS=$(get_metadata "doggyday-cors-origins") \
  -e DOGGYDAY_SESSION_STATE_PATH=/state/session.json \
  -e DOGGYDAY_LOG_FORMAT=json \
  ${IMAGE} serve

if [ -n "${DOMAIN}" ]; then
  docker run -d \
    --name caddy \
    --restart=always \
    --network doggyday-net \
    -p 80:80 \
    -p 443:443 \
    -v /home/chronos/caddy_data:/data \
    caddy caddy reverse-proxy --from ${DOMAIN} --to doggyday:8080
fi
`, region)

		instanceName := fmt.Sprintf("%s-host", namePrefix)
		instance, err := compute.NewInstance(ctx, instanceName, &compute.InstanceArgs{
			Name:        pulumi.String(instanceName),
			MachineType: pulumi.String(machineType),
			Zone:        pulumi.String(zone),
			Tags:        pulumi.StringArray{pulumi.String("doggyday-host")},
			BootDisk: &compute.InstanceBootDiskArgs{
				InitializeParams: &compute.InstanceBootDiskInitializeParamsArgs{
					Image: pulumi.String("cos-cloud/cos-stable"),
					Size:  pulumi.Int(10),
					Type:  pulumi.String("pd-standard"),
				},
			},
			NetworkInterfaces: compute.InstanceNetworkInterfaceArray{
				&compute.InstanceNetworkInterfaceArgs{
					Network:    network.ID(),
					Subnetwork: subnet.ID(),
					AccessConfigs: compute.InstanceNetworkInterfaceAccessConfigArray{
						&compute.InstanceNetworkInterfaceAccessConfigArgs{
							NatIp: staticIP.Address,
						},
					},
				},
			},
			ServiceAccount: &compute.InstanceServiceAccountArgs{
				Email: serviceAccount.Email,
				Scopes: pulumi.StringArray{
					pulumi.String("https://www.googleapis.com/auth/cloud-platform"),
				},
			},
			Metadata: pulumi.StringMap{
				"doggyday-image":         image,
				"doggyday-project-id":    pulumi.String(project),
				"doggyday-api-key":       apiKey,
				"doggyday-database":      firestoreDB.Name,
				"doggyday-bucket":        bucket.Name,
				"doggyday-web-client-id": pulumi.String(webClientID),
				"doggyday-cors-origins":  pulumi.String(corsOrigins),
				"doggyday-domain":        pulumi.String(domain),
			},
			MetadataStartupScript:  startupScript,
			AllowStoppingForUpdate: pulumi.Bool(true),
			Description:            pulumi.String(fmt.Sprintf("DoggyDay %s app host", env)),
		}, pulumi.DependsOn(iamBindings))
		if err != nil {
			return err
		}

		// =================================================================
		// Outputs
		// =================================================================
		ctx.Export("registryUrl", registryURL)
		ctx.Export("instanceName", instance.Name)
		ctx.Export("externalIp", staticIP.Address)
		ctx.Export("serviceAccountEmail", serviceAccount.Email)
		ctx.Export("firestoreDatabase", firestoreDB.Name)
		ctx.Export("photoBucket", bucket.Name)
		if domain != "" {
			ctx.Export("domain", pulumi.String(domain))
		}
		ctx.Export("dockerPushCommand", pulumi.Sprintf("docker push %s", image))
		ctx.Export("sshCommand", pulumi.Sprintf(
			"gcloud compute ssh %s --zone=%s --tunnel-through-iap",
			instance.Name, zone,
		))

		return nil
	})
}
