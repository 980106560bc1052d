// Package ssm applies password updates through AWS Systems Manager Run
// Command instead of direct SSH. Host entries are EC2 private IPs or
// instance IDs; the SSM agent on each instance executes the update.
package ssm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/smithy-go"

	"github.com/mcrossjr/fleetpass/internal/rotate"
)

// EC2API is the slice of the EC2 client used to resolve private IPs.
type EC2API interface {
	DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

// SSMAPI is the slice of the SSM client used to run the update command.
type SSMAPI interface {
	SendCommand(ctx context.Context, in *awsssm.SendCommandInput, optFns ...func(*awsssm.Options)) (*awsssm.SendCommandOutput, error)
	GetCommandInvocation(ctx context.Context, in *awsssm.GetCommandInvocationInput, optFns ...func(*awsssm.Options)) (*awsssm.GetCommandInvocationOutput, error)
}

var instanceIDRe = regexp.MustCompile(`^i-[0-9a-f]{8,17}$`)

// Runner applies password updates via SSM Run Command. It implements
// rotate.Runner. Prepare must be called once before the batch starts.
type Runner struct {
	ec2          EC2API
	ssm          SSMAPI
	ids          map[string]string // host entry -> instance ID
	pollInterval time.Duration
	pollTimeout  time.Duration // bound on waiting for one invocation; zero disables
}

// NewRunner creates a Runner using the default AWS credential chain.
// region overrides the environment's region when non-empty.
func NewRunner(ctx context.Context, region string) (*Runner, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Runner{
		ec2:          ec2.NewFromConfig(cfg),
		ssm:          awsssm.NewFromConfig(cfg),
		ids:          make(map[string]string),
		pollInterval: 2 * time.Second,
		pollTimeout:  5 * time.Minute,
	}, nil
}

// Prepare resolves host entries to instance IDs before the batch starts.
// Entries already shaped like instance IDs pass through; the rest are
// treated as private IPs and looked up against running instances in one
// DescribeInstances call. Unresolved entries are not an error here — they
// surface as per-host failures during the run.
func (r *Runner) Prepare(ctx context.Context, hosts []string) error {
	if r.ids == nil {
		r.ids = make(map[string]string)
	}

	var ips []string
	for _, h := range hosts {
		if instanceIDRe.MatchString(h) {
			r.ids[h] = h
			continue
		}
		ips = append(ips, h)
	}
	if len(ips) == 0 {
		return nil
	}

	out, err := r.ec2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("private-ip-address"), Values: ips},
			{Name: aws.String("instance-state-name"), Values: []string{"running"}},
		},
	})
	if err != nil {
		return fmt.Errorf("describe instances: %w", err)
	}

	for _, reservation := range out.Reservations {
		for _, instance := range reservation.Instances {
			ip := aws.ToString(instance.PrivateIpAddress)
			if ip != "" {
				r.ids[ip] = aws.ToString(instance.InstanceId)
			}
		}
	}
	return nil
}

// SetPassword sends the update command to the instance backing host and
// polls the invocation until it reaches a terminal status or ctx expires.
func (r *Runner) SetPassword(ctx context.Context, host, account, secret string) *rotate.HostResult {
	result := &rotate.HostResult{Host: host}

	id, ok := r.ids[host]
	if !ok {
		result.ExitCode = -1
		result.Err = fmt.Errorf("no running instance found for %s", host)
		return result
	}

	out, err := r.ssm.SendCommand(ctx, &awsssm.SendCommandInput{
		InstanceIds:  []string{id},
		DocumentName: aws.String("AWS-RunShellScript"),
		Parameters:   map[string][]string{"commands": {updateCommand(account, secret)}},
		Comment:      aws.String("fleetpass password update"),
	})
	if err != nil {
		result.ExitCode = -1
		result.Err = fmt.Errorf("send command to %s: %w", id, err)
		return result
	}

	if r.pollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.pollTimeout)
		defer cancel()
	}

	commandID := aws.ToString(out.Command.CommandId)
	return r.awaitInvocation(ctx, result, commandID, id)
}

// awaitInvocation polls GetCommandInvocation until the command reaches a
// terminal status. The invocation record can lag the SendCommand response,
// so InvocationDoesNotExist is treated as still pending.
func (r *Runner) awaitInvocation(ctx context.Context, result *rotate.HostResult, commandID, instanceID string) *rotate.HostResult {
	for {
		inv, err := r.ssm.GetCommandInvocation(ctx, &awsssm.GetCommandInvocationInput{
			CommandId:  aws.String(commandID),
			InstanceId: aws.String(instanceID),
		})
		if err != nil && !isInvocationPending(err) {
			result.ExitCode = -1
			result.Err = fmt.Errorf("get command invocation: %w", err)
			return result
		}

		if err == nil {
			switch inv.Status {
			case ssmtypes.CommandInvocationStatusSuccess:
				result.ExitCode = 0
				return result
			case ssmtypes.CommandInvocationStatusFailed,
				ssmtypes.CommandInvocationStatusCancelled,
				ssmtypes.CommandInvocationStatusTimedOut:
				result.ExitCode = int(inv.ResponseCode)
				if result.ExitCode == 0 {
					result.ExitCode = 1
				}
				result.Stderr = []byte(aws.ToString(inv.StandardErrorContent))
				if len(result.Stderr) == 0 {
					result.Stderr = []byte(fmt.Sprintf("command %s: %s", commandID, inv.Status))
				}
				return result
			}
			// Pending, InProgress, Delayed: keep polling.
		}

		select {
		case <-ctx.Done():
			result.ExitCode = -1
			result.Err = ctx.Err()
			return result
		case <-time.After(r.pollInterval):
		}
	}
}

func isInvocationPending(err error) bool {
	var notFound *ssmtypes.InvocationDoesNotExist
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvocationDoesNotExist"
}

// updateCommand builds the shell pipeline run by the SSM agent. The agent
// executes as root, so no sudo is needed. The account:secret pair is
// single-quoted against shell interpretation; note the command text is
// still retained in the SSM command history, which is an accepted property
// of the Run Command transport.
func updateCommand(account, secret string) string {
	return fmt.Sprintf("printf '%%s\\n' %s | chpasswd", shellQuote(account+":"+secret))
}

// shellQuote wraps s in single quotes, escaping embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
